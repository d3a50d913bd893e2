package types

// IntentCategory is a closed-taxonomy label for what a user's utterance asks
// the interface to do. New intents require a code change here plus a prompt
// update in internal/classify; they are deliberately not configurable.
type IntentCategory string

// IntentGroup clusters related intents for boost tables and reporting.
type IntentGroup string

const (
	GroupNavigation   IntentGroup = "navigation"
	GroupAction       IntentGroup = "action"
	GroupContent      IntentGroup = "content"
	GroupQuery        IntentGroup = "query"
	GroupCommerce     IntentGroup = "commerce"
	GroupControl      IntentGroup = "control"
	GroupConfirmation IntentGroup = "confirmation"
	GroupMeta         IntentGroup = "meta"
)

// Navigation intents.
const (
	IntentNavigateTo IntentCategory = "navigate_to"
	IntentGoBack     IntentCategory = "go_back"
	IntentGoForward  IntentCategory = "go_forward"
	IntentScrollUp   IntentCategory = "scroll_up"
	IntentScrollDown IntentCategory = "scroll_down"
	IntentOpenLink   IntentCategory = "open_link"
	IntentSwitchTab  IntentCategory = "switch_tab"
)

// Action intents.
const (
	IntentClickElement IntentCategory = "click_element"
	IntentFillForm     IntentCategory = "fill_form"
	IntentSubmitForm   IntentCategory = "submit_form"
	IntentSelectOption IntentCategory = "select_option"
	IntentToggle       IntentCategory = "toggle_element"
	IntentUploadFile   IntentCategory = "upload_file"
	IntentDownloadFile IntentCategory = "download_file"
	IntentCopyText     IntentCategory = "copy_text"
)

// Content intents.
const (
	IntentReadContent      IntentCategory = "read_content"
	IntentSummarizeContent IntentCategory = "summarize_content"
	IntentTranslateContent IntentCategory = "translate_content"
	IntentFindInPage       IntentCategory = "find_in_page"
	IntentZoomIn           IntentCategory = "zoom_in"
	IntentZoomOut          IntentCategory = "zoom_out"
)

// Query intents.
const (
	IntentSearchQuery   IntentCategory = "search_query"
	IntentAskQuestion   IntentCategory = "ask_question"
	IntentGetDetails    IntentCategory = "get_details"
	IntentCompareItems  IntentCategory = "compare_items"
	IntentFilterResults IntentCategory = "filter_results"
	IntentSortResults   IntentCategory = "sort_results"
)

// Commerce intents.
const (
	IntentAddToCart      IntentCategory = "add_to_cart"
	IntentRemoveFromCart IntentCategory = "remove_from_cart"
	IntentViewCart       IntentCategory = "view_cart"
	IntentCheckout       IntentCategory = "checkout"
	IntentTrackOrder     IntentCategory = "track_order"
	IntentSaveForLater   IntentCategory = "save_for_later"
)

// Control intents.
const (
	IntentUndo       IntentCategory = "undo"
	IntentRedo       IntentCategory = "redo"
	IntentStopAction IntentCategory = "stop_action"
	IntentRepeat     IntentCategory = "repeat_action"
	IntentPauseMedia IntentCategory = "pause_media"
	IntentPlayMedia  IntentCategory = "play_media"
)

// Confirmation intents.
const (
	IntentConfirm     IntentCategory = "confirm"
	IntentDeny        IntentCategory = "deny"
	IntentCancel      IntentCategory = "cancel"
	IntentHelpRequest IntentCategory = "help_request"
)

// Meta intents.
const (
	IntentUnknown IntentCategory = "unknown_intent"
	IntentClarify IntentCategory = "clarify_intent"
)

// intentGroups maps every taxonomy member to its group. This table is the
// source of truth for IsValidIntent and AllIntents.
var intentGroups = map[IntentCategory]IntentGroup{
	IntentNavigateTo: GroupNavigation,
	IntentGoBack:     GroupNavigation,
	IntentGoForward:  GroupNavigation,
	IntentScrollUp:   GroupNavigation,
	IntentScrollDown: GroupNavigation,
	IntentOpenLink:   GroupNavigation,
	IntentSwitchTab:  GroupNavigation,

	IntentClickElement: GroupAction,
	IntentFillForm:     GroupAction,
	IntentSubmitForm:   GroupAction,
	IntentSelectOption: GroupAction,
	IntentToggle:       GroupAction,
	IntentUploadFile:   GroupAction,
	IntentDownloadFile: GroupAction,
	IntentCopyText:     GroupAction,

	IntentReadContent:      GroupContent,
	IntentSummarizeContent: GroupContent,
	IntentTranslateContent: GroupContent,
	IntentFindInPage:       GroupContent,
	IntentZoomIn:           GroupContent,
	IntentZoomOut:          GroupContent,

	IntentSearchQuery:   GroupQuery,
	IntentAskQuestion:   GroupQuery,
	IntentGetDetails:    GroupQuery,
	IntentCompareItems:  GroupQuery,
	IntentFilterResults: GroupQuery,
	IntentSortResults:   GroupQuery,

	IntentAddToCart:      GroupCommerce,
	IntentRemoveFromCart: GroupCommerce,
	IntentViewCart:       GroupCommerce,
	IntentCheckout:       GroupCommerce,
	IntentTrackOrder:     GroupCommerce,
	IntentSaveForLater:   GroupCommerce,

	IntentUndo:       GroupControl,
	IntentRedo:       GroupControl,
	IntentStopAction: GroupControl,
	IntentRepeat:     GroupControl,
	IntentPauseMedia: GroupControl,
	IntentPlayMedia:  GroupControl,

	IntentConfirm:     GroupConfirmation,
	IntentDeny:        GroupConfirmation,
	IntentCancel:      GroupConfirmation,
	IntentHelpRequest: GroupConfirmation,

	IntentUnknown: GroupMeta,
	IntentClarify: GroupMeta,
}

// ContradictoryPairs lists intent pairs that cannot both be right for one
// utterance. The ensemble layer raises a contradictory conflict when two
// classifiers land on opposite sides of a pair.
var ContradictoryPairs = [][2]IntentCategory{
	{IntentAddToCart, IntentRemoveFromCart},
	{IntentUndo, IntentRedo},
	{IntentConfirm, IntentDeny},
	{IntentGoBack, IntentGoForward},
	{IntentPlayMedia, IntentPauseMedia},
	{IntentZoomIn, IntentZoomOut},
	{IntentScrollUp, IntentScrollDown},
}

// IsValidIntent reports whether s is a member of the closed taxonomy.
func IsValidIntent(s string) bool {
	_, ok := intentGroups[IntentCategory(s)]
	return ok
}

// GroupOf returns the group an intent belongs to, or GroupMeta for anything
// outside the taxonomy.
func GroupOf(intent IntentCategory) IntentGroup {
	if g, ok := intentGroups[intent]; ok {
		return g
	}
	return GroupMeta
}

// AllIntents returns every taxonomy member. Order is not guaranteed; callers
// that need determinism (prompt builders) must sort.
func AllIntents() []IntentCategory {
	out := make([]IntentCategory, 0, len(intentGroups))
	for intent := range intentGroups {
		out = append(out, intent)
	}
	return out
}

// groupOrder fixes the display order of groups for prompt builders.
var groupOrder = []IntentGroup{
	GroupNavigation, GroupAction, GroupContent, GroupQuery,
	GroupCommerce, GroupControl, GroupConfirmation, GroupMeta,
}

// intentOrder fixes a deterministic intent ordering within each group.
var intentOrder = []IntentCategory{
	IntentNavigateTo, IntentGoBack, IntentGoForward, IntentScrollUp,
	IntentScrollDown, IntentOpenLink, IntentSwitchTab,

	IntentClickElement, IntentFillForm, IntentSubmitForm, IntentSelectOption,
	IntentToggle, IntentUploadFile, IntentDownloadFile, IntentCopyText,

	IntentReadContent, IntentSummarizeContent, IntentTranslateContent,
	IntentFindInPage, IntentZoomIn, IntentZoomOut,

	IntentSearchQuery, IntentAskQuestion, IntentGetDetails,
	IntentCompareItems, IntentFilterResults, IntentSortResults,

	IntentAddToCart, IntentRemoveFromCart, IntentViewCart, IntentCheckout,
	IntentTrackOrder, IntentSaveForLater,

	IntentUndo, IntentRedo, IntentStopAction, IntentRepeat,
	IntentPauseMedia, IntentPlayMedia,

	IntentConfirm, IntentDeny, IntentCancel, IntentHelpRequest,

	IntentUnknown, IntentClarify,
}

// AllGroups returns every group in display order.
func AllGroups() []IntentGroup {
	out := make([]IntentGroup, len(groupOrder))
	copy(out, groupOrder)
	return out
}

// IntentsInGroup returns the group's members in deterministic order.
func IntentsInGroup(group IntentGroup) []IntentCategory {
	var out []IntentCategory
	for _, intent := range intentOrder {
		if intentGroups[intent] == group {
			out = append(out, intent)
		}
	}
	return out
}

// AreContradictory reports whether a and b form a known contradictory pair.
func AreContradictory(a, b IntentCategory) bool {
	for _, pair := range ContradictoryPairs {
		if (pair[0] == a && pair[1] == b) || (pair[0] == b && pair[1] == a) {
			return true
		}
	}
	return false
}
