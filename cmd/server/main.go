package main

import (
	"go.uber.org/fx"

	"github.com/egannguyen/autoparts-marketplace/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
