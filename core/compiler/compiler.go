// Package compiler turns resolved schema documents into Go source. A
// Compiler renders the blocks of one document; Flat orders blocks of many
// documents into files; Compile drives a whole run.
package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/ngAnzar/rpc/core/schema"
	"github.com/ngAnzar/rpc/core/typefactory"
	"github.com/rs/zerolog"
)

// Session holds what every document of one run shares.
type Session struct {
	Scope   *Scope
	Factory *typefactory.Factory
	Docs    schema.DocumentSource
	Logger  zerolog.Logger
}

// NewSession creates the shared state of a run.
func NewSession(docs schema.DocumentSource, logger zerolog.Logger) *Session {
	s := &Session{
		Scope:  NewScope(),
		Docs:   docs,
		Logger: logger,
	}
	s.Factory = typefactory.New(typefactory.NamerFunc(s.EntityName))
	return s
}

// Name returns the canonical identifier of the entity named q.
func (s *Session) Name(q schema.QName) string {
	return s.Scope.Claim(GoName(q.FullName()), q.UID())
}

// EntityName implements typefactory.Namer.
func (s *Session) EntityName(e *schema.Entity) string {
	return s.Name(e.Name)
}

var dataSourceMethods = []string{"search", "get", "save", "remove", "position"}

// Compiler renders the declarations of one document.
type Compiler struct {
	doc    *schema.Document
	s      *Session
	logger zerolog.Logger

	entities []*Block
	methods  []*Block
	data     *Block
	aliases  *Block

	current    *Block
	local      map[string]bool   // local entity and method top-level names
	aliasOf    map[string]string // entity uid -> alias
	aliasUID   map[string]string // alias -> entity uid
	aliasDecls []aliasDecl
	foreign    []*schema.Document
	compiled   bool

	exports   []string
	providers []string
}

type aliasDecl struct {
	Alias  string
	Target string
}

// New creates the compiler of doc.
func New(doc *schema.Document, s *Session) *Compiler {
	return &Compiler{
		doc:      doc,
		s:        s,
		logger:   s.Logger.With().Str("document", doc.Path).Logger(),
		local:    make(map[string]bool),
		aliasOf:  make(map[string]string),
		aliasUID: make(map[string]string),
	}
}

// Document returns the compiled document.
func (c *Compiler) Document() *schema.Document { return c.doc }

// Compile renders every block of the document. Calling it again is a no-op.
func (c *Compiler) Compile() error {
	if c.compiled {
		return nil
	}
	c.compiled = true

	for _, e := range c.doc.Entities {
		c.local[c.s.EntityName(e)] = true
		c.local[GoName(e.Name.TLN)] = true
	}
	for _, m := range c.doc.Methods {
		c.local[GoName(m.Name.TLN)] = true
	}

	for _, e := range c.doc.Entities {
		b, err := c.entity(e)
		if err != nil {
			return err
		}
		c.entities = append(c.entities, b)
	}
	for _, g := range c.groups() {
		if err := c.group(g); err != nil {
			return err
		}
	}
	if err := c.seed(); err != nil {
		return err
	}
	if err := c.aliasBlock(); err != nil {
		return err
	}

	c.logger.Debug().
		Int("entities", len(c.entities)).
		Int("method_blocks", len(c.methods)).
		Int("aliases", len(c.aliasDecls)).
		Msg("document compiled")
	return nil
}

// Blocks returns the entity blocks followed by method, data and alias
// blocks.
func (c *Compiler) Blocks() []*Block {
	out := append([]*Block(nil), c.entities...)
	out = append(out, c.methods...)
	if c.data != nil {
		out = append(out, c.data)
	}
	if c.aliases != nil {
		out = append(out, c.aliases)
	}
	return out
}

// Foreign returns the other documents the blocks reference.
func (c *Compiler) Foreign() []*schema.Document { return c.foreign }

// Exports returns the Go identifiers the document's blocks declare for
// its entities, method groups, data sources and seed records.
func (c *Compiler) Exports() []string { return c.exports }

// Providers returns the provider descriptors the document declares.
func (c *Compiler) Providers() []string { return c.providers }

// GoType renders the Go type of t as seen from this document.
func (c *Compiler) GoType(t schema.Type) (string, error) {
	c.track(t, nil)
	goType, err := typefactory.GoType(t, func(e *schema.Entity) string { return c.LocalName(e.Name) })
	if err != nil {
		return "", c.fail(err)
	}
	return goType, nil
}

// LocalName returns the identifier that names the entity q inside this
// document and records the dependency of the current block on it.
func (c *Compiler) LocalName(q schema.QName) string {
	c.depend(q)
	canonical := c.s.Name(q)
	if q.File == c.doc.Path {
		return canonical
	}
	return c.alias(q, canonical)
}

func (c *Compiler) routine(t schema.Type) (string, error) {
	name, err := c.s.Factory.Get(t)
	if err != nil {
		return "", c.fail(err)
	}
	return name, nil
}

func (c *Compiler) fail(err error) error {
	var ie *schema.InternalError
	if errors.As(err, &ie) {
		c.logger.Error().Str("op", ie.Op).Interface("value", ie.Value).Msg("unhandled schema value")
	}
	return err
}

func (c *Compiler) begin(key string) *Block {
	c.current = &Block{Key: key, Doc: c.doc}
	return c.current
}

func (c *Compiler) depend(q schema.QName) {
	if c.current != nil {
		c.current.depend(q.UID())
	}
	if q.File != c.doc.Path {
		c.addForeign(q.File)
	}
}

func (c *Compiler) addForeign(path string) {
	for _, d := range c.foreign {
		if d.Path == path {
			return
		}
	}
	doc, err := c.s.Docs.Get(path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("referenced document unavailable")
		return
	}
	c.foreign = append(c.foreign, doc)
}

func (c *Compiler) addExport(name string) {
	for _, e := range c.exports {
		if e == name {
			return
		}
	}
	c.exports = append(c.exports, name)
}

// track records the entities t reaches without crossing them.
func (c *Compiler) track(t schema.Type, path []schema.Type) {
	for _, seen := range path {
		if seen == t {
			return
		}
	}
	path = append(path, t)
	switch t := t.(type) {
	case *schema.List:
		c.track(t.Item, path)
	case *schema.Mapping:
		c.track(t.Item, path)
	case *schema.Optional:
		c.track(t.Item, path)
	case *schema.Tuple:
		for _, item := range t.Items {
			c.track(item, path)
		}
	case *schema.Reference:
		if target, ok := t.Type(); ok {
			c.track(target, path)
		} else if ent, ok := t.Entity(); ok {
			c.depend(ent.Name)
		}
	case *schema.Polymorphic:
		for _, arm := range t.Arms {
			c.track(arm.Type, path)
		}
	}
}

func aliasOwner(uid string) string { return "alias:" + uid }

// alias picks the name a foreign entity goes by in this document. The bare
// name is tried first, then numbered variants until nothing else in the
// document or the package uses it.
func (c *Compiler) alias(q schema.QName, canonical string) string {
	uid := q.UID()
	if a, ok := c.aliasOf[uid]; ok {
		return a
	}
	base := GoName(q.Name)
	alias := base
	for i := 1; c.aliasTaken(alias, uid); i++ {
		alias = base + "_" + strconv.Itoa(i)
	}
	c.aliasOf[uid] = alias
	c.aliasUID[alias] = uid
	if alias != canonical && c.s.Scope.Bind(alias, aliasOwner(uid)) {
		c.aliasDecls = append(c.aliasDecls, aliasDecl{Alias: alias, Target: canonical})
		if c.aliases == nil {
			c.aliases = &Block{Key: c.doc.Path + aliasKey, Doc: c.doc}
		}
		c.aliases.depend(uid)
	}
	return alias
}

func (c *Compiler) aliasTaken(alias, uid string) bool {
	if c.local[alias] {
		return true
	}
	if owner, ok := c.aliasUID[alias]; ok && owner != uid {
		return true
	}
	owner, ok := c.s.Scope.Owner(alias)
	return ok && owner != uid && owner != aliasOwner(uid)
}

func (c *Compiler) aliasBlock() error {
	if c.aliases == nil {
		return nil
	}
	return c.render(c.aliases, "aliases", c.aliasDecls)
}

func (c *Compiler) render(b *Block, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", b.Key, err)
	}
	b.Content = buf.String()
	return nil
}

type fieldData struct {
	JSON      string
	GoName    string
	Type      string
	Routine   string
	Primary   bool
	OmitEmpty bool
	Doc       []string
}

type entityData struct {
	Name        string
	FullName    string
	Module      string
	Descriptor  string
	PolymorphID []string
	Fields      []fieldData
}

func (c *Compiler) entity(e *schema.Entity) (*Block, error) {
	b := c.begin(e.Name.UID())
	name := c.s.EntityName(e)
	c.addExport(name)
	data := entityData{
		Name:        name,
		FullName:    e.Name.FullName(),
		Module:      c.doc.Module.Parent,
		Descriptor:  c.s.Scope.Claim(name+"Entity", e.Name.UID()+"/descriptor"),
		PolymorphID: e.PolymorphID,
	}
	used := map[string]bool{"FromRaw": true}
	for _, f := range e.Fields {
		goType, err := c.GoType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name.FullName(), f.Name, err)
		}
		routine, err := c.routine(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name.FullName(), f.Name, err)
		}
		_, optional := schema.Underlying(f.Type).(*schema.Optional)
		data.Fields = append(data.Fields, fieldData{
			JSON:      f.Name,
			GoName:    unique(GoName(f.Name), used),
			Type:      goType,
			Routine:   routine,
			Primary:   e.IsPrimary(f.Name),
			OmitEmpty: optional,
			Doc:       docLines(f.Summary, f.Description),
		})
	}
	if e.Polymorph != nil {
		c.track(e.Polymorph, nil)
	}
	return b, c.render(b, "entity", data)
}

type group struct {
	ns      string
	methods []*schema.Method
}

// groups returns the method groups sorted by namespace. Methods without a
// namespace are dropped.
func (c *Compiler) groups() []group {
	byNS := map[string][]*schema.Method{}
	for _, m := range c.doc.Methods {
		if m.Name.NS == "" {
			c.logger.Debug().Str("method", m.Name.Name).Msg("method without namespace skipped")
			continue
		}
		byNS[m.Name.NS] = append(byNS[m.Name.NS], m)
	}
	out := make([]group, 0, len(byNS))
	for ns, ms := range byNS {
		out = append(out, group{ns: ns, methods: ms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ns < out[j].ns })
	return out
}

// extends returns the local entities whose top-level name is ns.
func (c *Compiler) extends(ns string) []*schema.Entity {
	var out []*schema.Entity
	for _, e := range c.doc.Entities {
		if e.Name.TLN == ns {
			out = append(out, e)
		}
	}
	return out
}

type errorData struct {
	Code    int
	Message string
	Data    string
	Summary string
}

type methodData struct {
	FullName   string
	Func       string
	ParamsName string
	ErrorsName string
	Returns    string
	Routine    string
	Params     []fieldData
	Errors     []errorData
	Doc        []string
}

func (c *Compiler) method(m *schema.Method, fn string) (methodData, error) {
	full := m.Name.FullName()
	uid := m.Name.UID()
	md := methodData{
		FullName: full,
		Func:     fn,
		Doc:      append([]string{fn + " calls " + full + "."}, docLines(m.Returns.Summary, m.Returns.Description)...),
	}

	used := map[string]bool{}
	for _, p := range m.Params {
		goType, err := c.GoType(p.Type)
		if err != nil {
			return md, fmt.Errorf("%s(%s): %w", full, p.Name, err)
		}
		if p.Optional && !typefactory.Nilable(goType) {
			goType = "*" + goType
		}
		md.Params = append(md.Params, fieldData{
			JSON:      p.Name,
			GoName:    unique(GoName(p.Name), used),
			Type:      goType,
			OmitEmpty: p.IsOptional(),
			Doc:       docLines(p.Summary, p.Description),
		})
	}
	if len(md.Params) > 0 {
		md.ParamsName = c.s.Scope.Claim(GoName(full)+"Params", uid+"/params")
	}

	var err error
	if md.Returns, err = c.GoType(m.Returns.Type); err != nil {
		return md, fmt.Errorf("%s returns: %w", full, err)
	}
	if md.Routine, err = c.routine(m.Returns.Type); err != nil {
		return md, fmt.Errorf("%s returns: %w", full, err)
	}

	for _, th := range m.Throws {
		ed := errorData{Code: th.Code, Message: th.Message, Summary: th.Summary}
		if th.Data != nil {
			if ed.Data, err = literal(th.Data); err != nil {
				return md, fmt.Errorf("%s throws %d: %w", full, th.Code, err)
			}
		}
		md.Errors = append(md.Errors, ed)
	}
	if len(md.Errors) > 0 {
		md.ErrorsName = c.s.Scope.Claim(GoName(full)+"Errors", uid+"/errors")
	}
	return md, nil
}

func (c *Compiler) group(g group) error {
	key := c.doc.Path + "#" + schema.PathMethods + g.ns
	b := c.begin(key)

	if ents := c.extends(g.ns); len(ents) > 0 {
		for _, e := range ents {
			c.depend(e.Name)
		}
		var data struct{ Methods []methodData }
		for _, m := range g.methods {
			md, err := c.method(m, c.s.Scope.Claim(GoName(m.Name.FullName()), m.Name.UID()))
			if err != nil {
				return err
			}
			data.Methods = append(data.Methods, md)
			c.addExport(md.Func)
		}
		c.methods = append(c.methods, b)
		return c.render(b, "extension", data)
	}

	name := c.s.Scope.Claim(GoName(g.ns), key)
	data := struct {
		NS, Name, Client, Constructor, Provider, Module string
		Methods                                         []methodData
		MethodNames                                     []string
	}{
		NS:          g.ns,
		Name:        name,
		Client:      c.s.Scope.Claim(lowerName(g.ns)+"Client", key),
		Constructor: c.s.Scope.Claim("New"+name, key),
		Provider:    c.s.Scope.Claim(name+"Provider", key),
		Module:      c.doc.Module.Parent,
	}
	used := map[string]bool{}
	byName := map[string]*schema.Method{}
	for _, m := range g.methods {
		md, err := c.method(m, unique(GoName(m.Name.Name), used))
		if err != nil {
			return err
		}
		data.Methods = append(data.Methods, md)
		data.MethodNames = append(data.MethodNames, m.Name.FullName())
		byName[m.Name.Name] = m
	}
	c.methods = append(c.methods, b)
	c.providers = append(c.providers, data.Provider)
	c.addExport(name)
	if err := c.render(b, "interface", data); err != nil {
		return err
	}

	for _, n := range dataSourceMethods {
		if byName[n] == nil {
			return nil
		}
	}
	return c.source(g.ns, key, byName)
}

// source binds a group with the collection methods to rpc.DataSource.
func (c *Compiler) source(ns, groupKey string, byName map[string]*schema.Method) error {
	key := groupKey + "Source"
	b := c.begin(key)
	b.depend(groupKey)

	get := byName["get"]
	item, err := c.GoType(get.Returns.Type)
	if err != nil {
		return err
	}
	routine, err := c.routine(get.Returns.Type)
	if err != nil {
		return err
	}
	name := c.s.Scope.Claim(GoName(ns)+"Source", key)
	data := struct {
		NS, Name, Item, Routine, Constructor, Provider, Module string
		MethodNames                                           []string
	}{
		NS:          ns,
		Name:        ns + "Source",
		Item:        item,
		Routine:     routine,
		Constructor: c.s.Scope.Claim("New"+name, key),
		Provider:    c.s.Scope.Claim(name+"Provider", key),
		Module:      c.doc.Module.Parent,
	}
	for _, n := range dataSourceMethods {
		data.MethodNames = append(data.MethodNames, byName[n].Name.FullName())
	}
	c.methods = append(c.methods, b)
	c.providers = append(c.providers, data.Provider)
	c.addExport(data.Provider)
	return c.render(b, "source", data)
}

type seedData struct {
	Var     string
	Entity  string
	Routine string
	Records string
}

// seed renders the static records attached to local entities.
func (c *Compiler) seed() error {
	var seeds []seedData
	b := &Block{Key: c.doc.Path + dataKey, Doc: c.doc}
	c.current = b
	for _, e := range c.doc.Entities {
		if len(e.Data) == 0 {
			continue
		}
		ref, err := schema.NewReference("#"+schema.PathEntities+e.Name.FullName(), c.doc.Path)
		if err != nil {
			return err
		}
		ref.Bind(e)
		c.depend(e.Name)
		routine, err := c.routine(ref)
		if err != nil {
			return fmt.Errorf("%s data: %w", e.Name.FullName(), err)
		}
		records, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("%s data: %w", e.Name.FullName(), err)
		}
		name := c.s.EntityName(e)
		sd := seedData{
			Var:     c.s.Scope.Claim(name+"Data", e.Name.UID()+"/data"),
			Entity:  name,
			Routine: routine,
			Records: rawString(string(records)),
		}
		seeds = append(seeds, sd)
		c.addExport(sd.Var)
	}
	if len(seeds) == 0 {
		return nil
	}
	c.data = b
	return c.render(b, "data", seeds)
}

func unique(name string, used map[string]bool) string {
	id := name
	for i := 1; used[id]; i++ {
		id = name + "_" + strconv.Itoa(i)
	}
	used[id] = true
	return id
}

func docLines(parts ...string) []string {
	var out []string
	for _, p := range parts {
		for _, line := range strings.Split(strings.TrimSpace(p), "\n") {
			if line = strings.TrimRight(line, " \t\r"); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}
