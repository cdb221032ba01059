package utils

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
)

// Bytes2Struct decodes JSON bytes into a value of type T.
func Bytes2Struct[T any](data []byte) (T, error) {
	var result T
	err := json.Unmarshal(data, &result)
	if err != nil {
		return result, err
	}
	return result, nil
}

func Struct2Bytes[T any](data T) ([]byte, error) {
	return json.Marshal(data)
}

// MakeShutdownCh returns a channel closed on the first SIGINT or SIGTERM.
func MakeShutdownCh() chan struct{} {
	resultCh := make(chan struct{})
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		signal.Stop(signalCh)
		close(resultCh)
	}()
	return resultCh
}
