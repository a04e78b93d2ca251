package models

// Departments and years a post can be tagged with.
var (
	Departments = []string{"CSE", "ECE", "EEE", "MECH", "CIVIL", "IT", "AIDS", "AIML", "MBA", "MCA"}
	Years       = []string{"1st", "2nd", "3rd", "4th"}
)

const (
	FeedbackReport  = "report"
	FeedbackOpinion = "opinion"
	FeedbackUpdate  = "update"
	FeedbackFeature = "feature"
)

var FeedbackTypes = []string{FeedbackReport, FeedbackOpinion, FeedbackUpdate, FeedbackFeature}

func IsDepartment(s string) bool   { return contains(Departments, s) }
func IsYear(s string) bool         { return contains(Years, s) }
func IsFeedbackType(s string) bool { return contains(FeedbackTypes, s) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
