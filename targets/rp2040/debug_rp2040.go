//go:build rp2040

package main

// UART0 shares GPIO0/1 with the default step pins, so no debug output
func initDebug() {}
