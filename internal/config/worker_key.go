package config

type WorkerKeyStruct struct {
	// FinalizeAttemptsQueue carries attempt ids whose deadline passed but
	// whose owner never came back; the expiry sweep drains it.
	FinalizeAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	FinalizeAttemptsQueue: "finalize_attempts_queue",
}
