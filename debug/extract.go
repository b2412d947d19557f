// extract.go — the variable snapshot extractor.
package debug

import "github.com/calcfold/calcscript"

// ExtractVariables reads the current value of each named variable from the
// adapter's live frames, innermost scope first, so lexical shadowing resolves
// the way the guest program itself would resolve it. Names with no binding in
// any live scope are omitted from the result.
func ExtractVariables(a *Adapter, names []string) map[string]any {
	out := make(map[string]any, len(names))
	scopes := make([]*calcscript.Env, 0, 4)
	for _, f := range a.Frames() {
		if f.Scope != nil {
			scopes = append(scopes, f.Scope)
		}
	}
	if len(scopes) == 0 {
		// Execution has finished; globals are all that remains visible.
		scopes = append(scopes, a.Global())
	}
	for _, name := range names {
		for _, scope := range scopes {
			if v, ok := a.ReadVariable(scope, name); ok {
				out[name] = v
				break
			}
		}
	}
	return out
}
