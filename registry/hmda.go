package registry

// A subset of the dimensions of the HMDA loan application records, which is what users may pick
// from in the dimension slots.
var HMDAFields = []FieldID{
	"action_taken_name",
	"agency_name",
	"applicant_ethnicity_name",
	"applicant_sex_name",
	"applicant_race_name_1",
	"census_tract_number",
	"co_applicant_ethnicity_name",
	"co_applicant_race_name_1",
	"co_applicant_sex_name",
	"county_name",
	"denial_reason_name_1",
	"hoepa_status_name",
	"lien_status_name",
	"loan_purpose_name",
	"loan_type_name",
	"msamd_name",
	"owner_occupancy_name",
	"preapproval_name",
	"property_type_name",
	"purchaser_type_name",
	"respondent_id",
	"state_name",
	"as_of_year",
}

var HMDAMetrics = []MetricDef{
	{Key: "count", APIExpression: "COUNT()", HumanLabel: "Number of records"},
	{
		Key:           "min_applicant_income_000s",
		APIExpression: "MIN(applicant_income_000s)",
		HumanLabel:    "Applicant Income Minimum",
	},
	{
		Key:           "max_applicant_income_000s",
		APIExpression: "MAX(applicant_income_000s)",
		HumanLabel:    "Applicant Income Maximum",
	},
	{
		Key:           "avg_applicant_income_000s",
		APIExpression: "AVG(applicant_income_000s)",
		HumanLabel:    "Applicant Income Average",
	},
	{
		Key:           "min_loan_amount_000s",
		APIExpression: "MIN(loan_amount_000s)",
		HumanLabel:    "Loan Amount Minimum",
	},
	{
		Key:           "max_loan_amount_000s",
		APIExpression: "MAX(loan_amount_000s)",
		HumanLabel:    "Loan Amount Maximum",
	},
	{
		Key:           "avg_loan_amount_000s",
		APIExpression: "AVG(loan_amount_000s)",
		HumanLabel:    "Loan Amount Average",
	},
	{
		Key:           "sum_loan_amount_000s",
		APIExpression: "SUM(loan_amount_000s)",
		HumanLabel:    "Loan Amount Sum",
	},
}

// The metric key of COUNT(), which is formatted as a plain count rather than a dollar amount.
const CountMetric MetricKey = "count"

func NewHMDA() (*Registry, error) {
	return New(HMDAFields, HMDAMetrics)
}
