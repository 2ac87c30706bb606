package artifact

import (
	"fmt"
	"strings"
)

// bridgeScript reports load completion and runtime errors to the hosting
// page. Injected into every stored document so the preview iframe can be
// observed without same-origin access.
const bridgeScript = `<script>
(function () {
  function send(type, detail) {
    try { parent.postMessage({ type: type, detail: detail || null }, "*"); } catch (e) {}
  }
  window.addEventListener("error", function (e) {
    send("artifact:error", e && e.message ? e.message : String(e));
  });
  window.addEventListener("unhandledrejection", function (e) {
    send("artifact:error", e && e.reason ? String(e.reason) : "unhandled rejection");
  });
  window.addEventListener("DOMContentLoaded", function () {
    send("artifact:ready");
  });
})();
</script>`

const shellTemplate = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Preview</title>
</head>
<body>
%s
</body>
</html>`

// renderDocument turns generated code into a complete HTML document with
// the bridge installed. Deterministic: identical input yields identical
// output bytes.
func renderDocument(code, lang string) string {
	if isFullDocument(code) {
		return injectBridge(code)
	}

	var body string
	if looksLikeMarkup(code, lang) {
		body = code
	} else {
		body = fmt.Sprintf("<div id=\"root\"></div>\n<script type=\"module\">\n%s\n</script>", code)
	}
	return injectBridge(fmt.Sprintf(shellTemplate, body))
}

// isFullDocument reports whether code is already a complete HTML document.
func isFullDocument(code string) bool {
	t := strings.ToLower(strings.TrimSpace(code))
	return strings.HasPrefix(t, "<!doctype") || strings.HasPrefix(t, "<html")
}

// looksLikeMarkup decides whether code should be embedded as body markup
// rather than executed as a module script.
func looksLikeMarkup(code, lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "html", "htm":
		return true
	case "js", "javascript", "jsx", "ts", "tsx":
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(code), "<")
}

// injectBridge places the bridge script immediately before the closing body
// tag, or appends it when the document has none.
func injectBridge(doc string) string {
	lower := strings.ToLower(doc)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return doc[:i] + bridgeScript + "\n" + doc[i:]
	}
	return doc + "\n" + bridgeScript
}
