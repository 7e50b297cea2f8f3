package manifest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalid is wrapped by every schema violation.
var ErrInvalid = errors.New("invalid module manifest")

// schemaSource constrains module descriptions. Names are identifiers (dots
// allowed for library paths), versions are dotted numbers with an optional
// pre-release suffix.
const schemaSource = `
#Ident: =~"^[A-Za-z_][A-Za-z0-9_.-]*$"

#Module: {
	name:     #Ident
	library:  #Ident
	version?: =~"^v?[0-9]+(\\.[0-9]+){0,2}(-[0-9A-Za-z.-]+)?$"
	exports?: [...#Ident]
	shared?: [...string & !=""]
}
`

var (
	schemaMu  sync.Mutex
	schemaCtx *cue.Context
	schemaDef cue.Value
)

func moduleSchema() (*cue.Context, cue.Value, error) {
	if schemaCtx == nil {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaSource, cue.Filename("module.cue"))
		if err := v.Err(); err != nil {
			return nil, cue.Value{}, fmt.Errorf("manifest: compile schema: %w", err)
		}
		schemaCtx = ctx
		schemaDef = v.LookupPath(cue.ParsePath("#Module"))
	}
	return schemaCtx, schemaDef, nil
}

// Validate checks m against the module schema.
func Validate(m *Module) error {
	if m == nil {
		return fmt.Errorf("%w: no module", ErrInvalid)
	}

	// cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := moduleSchema()
	if err != nil {
		return err
	}
	v := def.Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}
