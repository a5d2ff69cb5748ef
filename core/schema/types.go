package schema

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Native type names.
const (
	NativeString   = "string"
	NativeInteger  = "integer"
	NativeNumber   = "number"
	NativeBoolean  = "boolean"
	NativeDate     = "date"
	NativeDateTime = "datetime"
	NativeTime     = "time"
	NativeAny      = "any"
	NativeNull     = "null"
)

var natives = map[string]bool{
	NativeString: true, NativeInteger: true, NativeNumber: true, NativeBoolean: true,
	NativeDate: true, NativeDateTime: true, NativeTime: true, NativeAny: true, NativeNull: true,
}

// IsNative reports whether name is a primitive type name.
func IsNative(name string) bool {
	return natives[name]
}

// Type is a node of a type graph. The set of implementations is closed:
// Native, List, Mapping, Tuple, Optional, Reference and Polymorphic.
type Type interface {
	// UID is the structural identity of the type.
	UID() string
	// Resolve resolves every reference below the node and drops the
	// memoized UID.
	Resolve(r Resolver) error

	uidSource() string
}

// Resolver finds the declaration a reference points to.
type Resolver interface {
	Resolve(ref *Reference) (any, error)
}

type uidMemo struct {
	uid string
}

func (m *uidMemo) get(src func() string) string {
	if m.uid == "" {
		sum := blake2b.Sum256([]byte(src()))
		m.uid = hex.EncodeToString(sum[:16])
	}
	return m.uid
}

func (m *uidMemo) reset() { m.uid = "" }

// Native is a primitive type.
type Native struct {
	Name string
	memo uidMemo
}

func NewNative(name string) *Native { return &Native{Name: name} }

func (t *Native) UID() string { return t.memo.get(t.uidSource) }

func (t *Native) Resolve(Resolver) error {
	t.memo.reset()
	return nil
}

func (t *Native) uidSource() string { return "Type_Native[" + t.Name + "]" }

// List is an ordered sequence of Item.
type List struct {
	Item Type
	memo uidMemo
}

func NewList(item Type) *List { return &List{Item: item} }

func (t *List) UID() string { return t.memo.get(t.uidSource) }

func (t *List) Resolve(r Resolver) error {
	t.memo.reset()
	return t.Item.Resolve(r)
}

func (t *List) uidSource() string { return "Type_List[" + t.Item.UID() + "]" }

// Mapping is a string keyed map of Item.
type Mapping struct {
	Item Type
	memo uidMemo
}

func NewMapping(item Type) *Mapping { return &Mapping{Item: item} }

func (t *Mapping) UID() string { return t.memo.get(t.uidSource) }

func (t *Mapping) Resolve(r Resolver) error {
	t.memo.reset()
	return t.Item.Resolve(r)
}

func (t *Mapping) uidSource() string { return "Type_Mapping[" + t.Item.UID() + "]" }

// Tuple is a fixed length sequence of differently typed items.
type Tuple struct {
	Items []Type
	memo  uidMemo
}

func NewTuple(items ...Type) *Tuple { return &Tuple{Items: items} }

func (t *Tuple) UID() string { return t.memo.get(t.uidSource) }

func (t *Tuple) Resolve(r Resolver) error {
	t.memo.reset()
	for _, item := range t.Items {
		if err := item.Resolve(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tuple) uidSource() string {
	uids := make([]string, len(t.Items))
	for i, item := range t.Items {
		uids[i] = item.UID()
	}
	return "Type_Tuple[" + strings.Join(uids, ", ") + "]"
}

// Optional is a nullable Item.
type Optional struct {
	Item Type
	memo uidMemo
}

func NewOptional(item Type) *Optional { return &Optional{Item: item} }

func (t *Optional) UID() string { return t.memo.get(t.uidSource) }

func (t *Optional) Resolve(r Resolver) error {
	t.memo.reset()
	return t.Item.Resolve(r)
}

func (t *Optional) uidSource() string { return "Type_Optional[" + t.Item.UID() + "]" }

// Reference points to an entity or a type, possibly in another document.
// The target is looked up once and kept; the reference never copies it.
type Reference struct {
	Ref     string // raw $ref value
	DocPath string // document the reference was declared in

	target any
	memo   uidMemo
}

// NewReference checks the reference shape. The target is found later by
// Resolve.
func NewReference(ref, docPath string) (*Reference, error) {
	if !strings.Contains(ref, "#") {
		return nil, fmt.Errorf("%q: %w", ref, ErrMissingHash)
	}
	return &Reference{Ref: ref, DocPath: docPath}, nil
}

// UID of a reference to a type equals the UID of that type, so the two are
// interchangeable for code generation.
func (t *Reference) UID() string { return t.memo.get(t.uidSource) }

// Resolve asks r for the target the first time it is called. Later calls
// keep the target and only drop the memoized UID.
func (t *Reference) Resolve(r Resolver) error {
	t.memo.reset()
	if t.target != nil {
		return nil
	}
	target, err := r.Resolve(t)
	if err != nil {
		return err
	}
	switch target.(type) {
	case *Entity, Type:
	default:
		return fmt.Errorf("%s: %w", t.Ref, ErrInvalidTarget)
	}
	t.target = target
	return nil
}

// Resolved reports whether the target is known.
func (t *Reference) Resolved() bool { return t.target != nil }

// Entity returns the referenced entity, if the target is one.
func (t *Reference) Entity() (*Entity, bool) {
	e, ok := t.target.(*Entity)
	return e, ok
}

// Type returns the referenced type, if the target is one.
func (t *Reference) Type() (Type, bool) {
	tt, ok := t.target.(Type)
	return tt, ok
}

// Bind sets the target without a resolver.
func (t *Reference) Bind(target any) {
	t.target = target
	t.memo.reset()
}

func (t *Reference) uidSource() string {
	switch target := t.target.(type) {
	case *Entity:
		return target.Name.UID()
	case Type:
		return target.uidSource()
	default:
		return "Type_Unresolved[" + t.Ref + "]"
	}
}

// PolymorphicID identifies one arm of a polymorphic type: the discriminator
// fields and the values they hold.
type PolymorphicID struct {
	Fields []string
	Values []string
}

func (id PolymorphicID) UID() string {
	return strings.Join(id.Fields, ",") + "//" + strings.Join(id.Values, ",")
}

// PolymorphicArm pairs an identity with the type built for it.
type PolymorphicArm struct {
	ID   PolymorphicID
	Type *Reference
}

func (a PolymorphicArm) UID() string { return a.ID.UID() + ":" + a.Type.UID() }

// Polymorphic is a discriminated union.
type Polymorphic struct {
	Arms []PolymorphicArm
	memo uidMemo
}

func NewPolymorphic(arms ...PolymorphicArm) *Polymorphic { return &Polymorphic{Arms: arms} }

func (t *Polymorphic) UID() string { return t.memo.get(t.uidSource) }

func (t *Polymorphic) Resolve(r Resolver) error {
	t.memo.reset()
	for _, arm := range t.Arms {
		if err := arm.Type.Resolve(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Polymorphic) uidSource() string {
	uids := make([]string, len(t.Arms))
	for i, arm := range t.Arms {
		uids[i] = arm.UID()
	}
	return "Type_Polymorphic[" + strings.Join(uids, ",") + "]"
}

// SingleField returns the discriminator field when every arm is identified
// by the same single field.
func (t *Polymorphic) SingleField() (string, bool) {
	field := ""
	for i, arm := range t.Arms {
		if len(arm.ID.Fields) != 1 {
			return "", false
		}
		if i == 0 {
			field = arm.ID.Fields[0]
		} else if arm.ID.Fields[0] != field {
			return "", false
		}
	}
	return field, field != ""
}

// Underlying follows references to types until it reaches a type that is
// not a Reference, or a reference to an entity.
func Underlying(t Type) Type {
	for i := 0; i < 64; i++ {
		ref, ok := t.(*Reference)
		if !ok {
			return t
		}
		target, ok := ref.Type()
		if !ok {
			return t
		}
		t = target
	}
	return t
}
