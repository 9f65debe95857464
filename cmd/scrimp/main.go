// Scrimp - cloud cost waste detector.
// Scan. Price. Report.
package main

func main() {
	Execute()
}
