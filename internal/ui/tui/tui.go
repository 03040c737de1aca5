// Package tui provides interactive terminal UI components using BubbleTea.
package tui
