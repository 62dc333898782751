package models

// Category is the giveaway category a task run participated in
type Category string

const (
	CategoryNone      Category = ""
	CategoryAmateur   Category = "amateur"
	CategoryContender Category = "contender"
)

// Outcome is the result of one task attempt
type Outcome struct {
	Success  bool
	Category Category
	Profit   *float64 // nil when the task reported no profit delta
	Err      error
}
