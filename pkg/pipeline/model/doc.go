// Package model provides the data structures shared by the pipeline package and its observers.
// It defines the items tracked on a board, the stages they move through, the moves applied to them
// and the observer hooks notified during the board lifecycle.
package model
