// Command brio is the branch-lifecycle kernel's CLI entry point.
package main

func main() {
	Execute()
}
