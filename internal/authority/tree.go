package authority

// ClassNode is one node of the built-in classification forest.
type ClassNode struct {
	Code     string      `json:"code"`
	Label    string      `json:"label"`
	Children []ClassNode `json:"children,omitempty"`
}

// classificationTree is the static forest behind the classification tree
// endpoint. Leaf codes are informational; only the four top-level codes are
// assigned by the classifier.
var classificationTree = []ClassNode{
	{
		Code: "000", Label: "Computer Science, Information & General Works",
		Children: []ClassNode{
			{Code: "004", Label: "Data Processing & Computer Science"},
			{Code: "005", Label: "Computer Programming, Programs & Data"},
			{Code: "006", Label: "Special Computer Methods"},
		},
	},
	{
		Code: "400", Label: "Language",
		Children: []ClassNode{
			{Code: "410", Label: "Linguistics"},
			{Code: "420", Label: "English & Old English"},
			{Code: "460", Label: "Spanish & Portuguese"},
		},
	},
	{
		Code: "500", Label: "Natural Sciences & Mathematics",
		Children: []ClassNode{
			{Code: "510", Label: "Mathematics"},
			{Code: "530", Label: "Physics"},
			{Code: "540", Label: "Chemistry"},
			{Code: "570", Label: "Life Sciences, Biology"},
		},
	},
	{
		Code: "900", Label: "History & Geography",
		Children: []ClassNode{
			{Code: "909", Label: "World History"},
			{Code: "910", Label: "Geography & Travel"},
			{Code: "930", Label: "History of the Ancient World"},
			{Code: "940", Label: "History of Europe"},
		},
	},
}

// ClassificationTree returns a copy of the built-in classification forest.
func ClassificationTree() []ClassNode {
	out := make([]ClassNode, len(classificationTree))
	copy(out, classificationTree)
	return out
}
