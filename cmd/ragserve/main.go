// Package main is the entry point for ragserve.
package main

import (
	_ "go.uber.org/automaxprocs"

	app "github.com/kart-io/ragserve/internal/ragserve"
)

func main() {
	app.NewApp().Run()
}
