package schemas

import "strings"

// ActionKind is the closed set of behaviors an ActionSpec can request.
type ActionKind string

const (
	ActionNone       ActionKind = "none"
	ActionClick      ActionKind = "click"
	ActionScrape     ActionKind = "scrape"
	ActionTable      ActionKind = "table"
	ActionHTML       ActionKind = "html"
	ActionScreenshot ActionKind = "screenshot"
	ActionPDF        ActionKind = "pdf"
	ActionRedirect   ActionKind = "redirect"
	ActionDownload   ActionKind = "download"
	ActionTabIterate ActionKind = "tab-iterate"
	ActionURLIterate ActionKind = "url-iterate"
	ActionHTTP       ActionKind = "http"
	ActionManual     ActionKind = "manual"
	ActionUnknown    ActionKind = "unknown"
)

// ActionKinds lists every supported kind in declaration order.
var ActionKinds = []ActionKind{
	ActionNone, ActionClick, ActionScrape, ActionTable, ActionHTML, ActionScreenshot,
	ActionPDF, ActionRedirect, ActionDownload, ActionTabIterate, ActionURLIterate,
	ActionHTTP, ActionManual,
}

// ParseActionKind maps a configuration tag to an ActionKind. An empty tag is a
// presence check; unrecognised tags map to ActionUnknown.
func ParseActionKind(s string) ActionKind {
	tag := strings.ToLower(strings.TrimSpace(s))
	switch tag {
	case "":
		return ActionNone
	case "website":
		return ActionRedirect
	case "tab_iterate", "tabs":
		return ActionTabIterate
	case "url_iterate", "urls":
		return ActionURLIterate
	}
	for _, k := range ActionKinds {
		if string(k) == tag {
			return k
		}
	}
	return ActionUnknown
}

// IsIterator reports whether the kind expands its follow-up list.
func (k ActionKind) IsIterator() bool {
	return k == ActionTabIterate || k == ActionURLIterate
}

// NeedsLocator reports whether the kind operates on a resolved element.
func (k ActionKind) NeedsLocator() bool {
	switch k {
	case ActionClick, ActionScrape, ActionTable, ActionHTML, ActionDownload, ActionTabIterate:
		return true
	default:
		return false
	}
}

// Strategy is the symbolic locator strategy used in site scripts.
type Strategy string

const (
	StrategyCSS      Strategy = "css"
	StrategyXPath    Strategy = "xpath"
	StrategyID       Strategy = "id"
	StrategyName     Strategy = "name"
	StrategyClass    Strategy = "class"
	StrategyTag      Strategy = "tag"
	StrategyLinkText Strategy = "link-text"
)

// Normalize lower-cases the strategy and folds common aliases.
func (s Strategy) Normalize() Strategy {
	switch v := Strategy(strings.ToLower(strings.TrimSpace(string(s)))); v {
	case "css_selector", "css selector":
		return StrategyCSS
	case "link_text", "link text", "linktext":
		return StrategyLinkText
	case "class_name", "classname":
		return StrategyClass
	case "tag_name", "tagname":
		return StrategyTag
	default:
		return v
	}
}

// WaitCondition is the symbolic readiness condition of a wait.
type WaitCondition string

const (
	WaitClickable WaitCondition = "clickable"
	WaitVisible   WaitCondition = "visible"
	WaitPresent   WaitCondition = "present"
	WaitInvisible WaitCondition = "invisible"
	WaitAttached  WaitCondition = "attached"
)

// ContentType tags the payload of a ResponseEntry.
type ContentType string

const (
	ContentHTML       ContentType = "html"
	ContentTableHTML  ContentType = "table_html"
	ContentPDF        ContentType = "pdf"
	ContentCSV        ContentType = "csv"
	ContentDOCX       ContentType = "docx"
	ContentXLSX       ContentType = "xlsx"
	ContentText       ContentType = "text"
	ContentScreenshot ContentType = "screenshot"
)

// IsBinary reports whether values of this type are base64 encoded.
func (c ContentType) IsBinary() bool {
	switch c {
	case ContentPDF, ContentDOCX, ContentXLSX, ContentScreenshot:
		return true
	default:
		return false
	}
}

// Marker flags a ResponseEntry that carries no content.
type Marker string

const (
	MarkerSkip  Marker = "skip"
	MarkerError Marker = "error"
)
