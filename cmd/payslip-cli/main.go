package main

import (
	"context"
	"payslip-scraper/cmd/payslip-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
