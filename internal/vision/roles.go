package vision

// IconRoles is the fixed label set of the icon classifier, in output order.
var IconRoles = []string{
	"add",
	"arrow_down",
	"arrow_left",
	"arrow_right",
	"arrow_up",
	"barcode",
	"brightness",
	"close",
	"delete",
	"home",
	"menu",
	"minus",
	"qr_code",
	"scroll_bar",
}

// ScrollRoles are the icon roles that indicate a scrollable list on screen.
var ScrollRoles = map[string]bool{
	"arrow_down": true,
	"arrow_up":   true,
	"scroll_bar": true,
}
