// Command gwpctl exercises and inspects the guarded-page allocator.
package main

func main() {
	execute()
}
