// Vartija - Access Policy Risk Analyzer
// Analyze. Suppress. Report.
package main

import "context"

func main() {
	shutdown := initTelemetry(context.Background())
	defer shutdown()

	Execute()
}
