package mcptools

// Item is a patient card as returned by the tools. Amounts are decimal strings.
type Item struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stage     string `json:"stage"`
	Position  int    `json:"position" jsonschema:"zero-based position of the card in the whole board"`
	Value     string `json:"value"`
	Treatment string `json:"treatment,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type ListItemsInput struct {
	Stage string `json:"stage,omitempty" jsonschema:"only list the patients of this stage"`
}

type ListItemsOutput struct {
	Stages []string `json:"stages"`
	Items  []Item   `json:"items"`
}

type StageTotalsInput struct{}

type StageTotal struct {
	Stage     string `json:"stage"`
	Count     int    `json:"count"`
	Sum       string `json:"sum"`
	Formatted string `json:"formatted" jsonschema:"the sum formatted as Brazilian reais"`
}

type StageTotalsOutput struct {
	Totals []StageTotal `json:"totals"`
}

type MoveItemInput struct {
	ItemID string `json:"itemId" jsonschema:"id of the patient to move"`
	Stage  string `json:"stage" jsonschema:"name of the target stage"`
	Index  *int   `json:"index,omitempty" jsonschema:"final zero-based position in the whole board (default: after the last card of the stage)"`
}

type MoveItemOutput struct {
	MoveID  string `json:"moveId,omitempty"`
	State   string `json:"state" jsonschema:"idle, settled or rolled_back"`
	Noop    bool   `json:"noop"`
	Message string `json:"message,omitempty"`
	Item    Item   `json:"item"`
}
