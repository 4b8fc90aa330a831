// Command taskfarm farms a sequence of work items out to worker processes and
// compares the dynamic and static scheduling policies.
package main

func main() {
	Execute()
}
