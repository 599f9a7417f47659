package bill

import "time"

// Category is the user-chosen spending category. The set is closed; the UI
// collaborator only ever sends one of these values.
type Category string

const (
	CategoryHome          Category = "HOME"
	CategoryFood          Category = "FOOD"
	CategoryTransport     Category = "TRANSPORT"
	CategoryHealth        Category = "HEALTH"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryServices      Category = "SERVICES"
	CategoryOther         Category = "OTHER"
)

// Valid reports whether the category belongs to the closed set
func (c Category) Valid() bool {
	switch c {
	case CategoryHome, CategoryFood, CategoryTransport, CategoryHealth,
		CategoryEntertainment, CategoryServices, CategoryOther:
		return true
	}
	return false
}

// Type distinguishes money going out from money coming in
type Type string

const (
	TypeExpense Type = "EXPENSE"
	TypeIncome  Type = "INCOME"
)

// Valid reports whether the type belongs to the closed set
func (t Type) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// Draft is the user-editable transaction record between scanning (or manual
// entry) and submission. Amount and Date stay the captured/edited strings;
// they are only parsed when the submission payload is built. Edits replace
// the stored draft wholesale, never field by field in place.
type Draft struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	Amount      string    `json:"amount"`
	Date        string    `json:"date"`
	Category    Category  `json:"category"`
	Type        Type      `json:"type"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Payload is the immutable record submitted to the backend. Amount is always
// integer minor units (cents), never a string with separators; BillDate is
// the draft's date string passed through unreformatted.
type Payload struct {
	UserID   int      `json:"userId"`
	Company  string   `json:"company"`
	Amount   int64    `json:"amount"`
	BillDate string   `json:"billDate"`
	Category Category `json:"category"`
	Type     Type     `json:"type"`
}
