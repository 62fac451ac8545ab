package questionnaire

// The question catalog. Every job gets the base set; information memorandum
// and pitch deck add deeper financial and strategy questions.
var baseQuestions = []Question{
	{ID: "business_overview", Text: "Describe the company's core business and main products or services."},
	{ID: "customers", Text: "Who are the company's main customer segments and largest customers?"},
	{ID: "competitive_position", Text: "What differentiates the company from its competitors?"},
	{ID: "sale_rationale", Text: "Why is the company being sold, and what is the desired timeline?"},
}

var imQuestions = []Question{
	{ID: "revenue_breakdown", Text: "Break down revenue by product line or business unit for the last three years."},
	{ID: "key_personnel", Text: "List key management and personnel, and whether they stay after the transaction."},
	{ID: "contracts_liabilities", Text: "Describe material contracts, commitments and known liabilities."},
	{ID: "growth_plan", Text: "What are the main growth opportunities over the next three to five years?"},
}

var pitchDeckQuestions = []Question{
	{ID: "investment_highlights", Text: "What are the three strongest selling points of the company?"},
	{ID: "market_outlook", Text: "How is the company's market expected to develop?"},
}

// QuestionsFor returns the catalog slice applicable to the requested outputs,
// base questions first.
func QuestionsFor(outputs []string) []Question {
	questions := append([]Question(nil), baseQuestions...)
	for _, o := range outputs {
		switch o {
		case "im":
			questions = append(questions, imQuestions...)
		case "pitch_deck":
			questions = append(questions, pitchDeckQuestions...)
		}
	}
	return questions
}

// QuestionByID looks a question up across the whole catalog.
func QuestionByID(id string) (Question, bool) {
	for _, set := range [][]Question{baseQuestions, imQuestions, pitchDeckQuestions} {
		for _, q := range set {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}
