package config

type WorkerKeyStruct struct {
	ScoreCompletionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ScoreCompletionsQueue: "score_completions_queue",
}
