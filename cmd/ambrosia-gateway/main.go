package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ambrosia-pos-gateway/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting ambrosia gateway %s\n", time.Now().Format("2006-01-02 15:04:05.000"), bootstrap.Version)
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ambrosia gateway failed: %v\n", err)
		os.Exit(1)
	}
}
