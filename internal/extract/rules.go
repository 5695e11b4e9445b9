package extract

import "regexp"

// Category is a kind of value the extractor can find in a transcript.
type Category string

const (
	CategoryName        Category = "name"
	CategoryAddress     Category = "address"
	CategoryDateOfBirth Category = "dateOfBirth"
	CategoryPhone       Category = "phone"
	CategoryEmail       Category = "email"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryName,
	CategoryAddress,
	CategoryDateOfBirth,
	CategoryPhone,
	CategoryEmail,
}

// Rule is one pattern for a category. Lower Priority runs first.
// Group selects the capture group to return; 0 returns the whole match.
type Rule struct {
	Category Category
	Priority int
	Pattern  *regexp.Regexp
	Group    int
}

const (
	capitalizedPair = `([A-Z][a-z]+ [A-Z][a-z]+)`
	streetAddress   = `([0-9]+ [A-Za-z]+ [A-Za-z]+, [A-Za-z]+)`
	longDate        = `([A-Za-z]+ [0-9]{1,2}, [0-9]{4})`
)

// DefaultRules is the English rule table. Keyword phrases match in any case;
// captured names keep their capitalization requirement.
var DefaultRules = []Rule{
	{Category: CategoryName, Priority: 10, Pattern: regexp.MustCompile(`(?i:my name is) ` + capitalizedPair), Group: 1},
	{Category: CategoryName, Priority: 20, Pattern: regexp.MustCompile(`(?i:\bI am) ` + capitalizedPair), Group: 1},
	{Category: CategoryName, Priority: 30, Pattern: regexp.MustCompile(`(?i:\bname)[\s\-:]+` + capitalizedPair), Group: 1},

	{Category: CategoryAddress, Priority: 10, Pattern: regexp.MustCompile(`(?i:I live at) ` + streetAddress), Group: 1},
	{Category: CategoryAddress, Priority: 20, Pattern: regexp.MustCompile(`(?i:address)[\s\-:]+` + streetAddress), Group: 1},

	{Category: CategoryDateOfBirth, Priority: 10, Pattern: regexp.MustCompile(`(?i:born on) ` + longDate), Group: 1},
	{Category: CategoryDateOfBirth, Priority: 20, Pattern: regexp.MustCompile(`(?i:birth)[\s\-:]+` + longDate), Group: 1},
	{Category: CategoryDateOfBirth, Priority: 30, Pattern: regexp.MustCompile(`([0-9]{1,2}/[0-9]{1,2}/[0-9]{4})`), Group: 1},
	{Category: CategoryDateOfBirth, Priority: 40, Pattern: regexp.MustCompile(`([0-9]{4}-[0-9]{1,2}-[0-9]{1,2})`), Group: 1},

	{Category: CategoryPhone, Priority: 10, Pattern: regexp.MustCompile(`(\+\d{1,3}[\s-]?)?\(?\d{3}\)?[\s-]?\d{3}[\s-]?\d{4}`)},

	{Category: CategoryEmail, Priority: 10, Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
}
