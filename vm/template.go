package vm

import (
	"strings"
	"sync"
)

// Template is a parametrized class such as Vector. Applying it to type
// parameters yields an ordinary class, created once per parameter list.
type Template struct {
	Name  QName
	Super *Class

	// Build customizes each applied class: declaring traits, setting the
	// constructor, and so on. It may be nil.
	Build func(c *Class, params []Type)

	engine    *Engine
	mu        sync.Mutex
	instances map[string]*Class
}

// DefineTemplate registers a template.
func (e *Engine) DefineTemplate(name QName, super *Class, build func(c *Class, params []Type)) *Template {
	t := &Template{Name: name, Super: super, Build: build, engine: e, instances: make(map[string]*Class)}
	e.templatesMu.Lock()
	e.templates[name] = t
	e.templatesMu.Unlock()
	return t
}

// Template returns the template registered under name, or nil.
func (e *Engine) Template(name QName) *Template {
	e.templatesMu.RLock()
	defer e.templatesMu.RUnlock()
	return e.templates[name]
}

// ApplyType returns the class for the given type parameters, creating it
// on first use. The class is named like Vector.<int>.
func (t *Template) ApplyType(params []Type) (*Class, error) {
	names := make([]string, len(params))
	for i, p := range params {
		if p == nil {
			p = AnyType
			params[i] = p
		}
		names[i] = p.Name()
	}
	key := strings.Join(names, ",")

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.instances[key]; ok {
		return c, nil
	}

	e := t.engine
	local := e.Names.Name(t.Name.Name) + ".<" + key + ">"
	c, err := e.DefineClass(QName{Name: e.Names.Intern(local), NS: t.Name.NS}, t.Super)
	if err != nil {
		return nil, err
	}
	c.template = t
	c.TypeParams = append([]Type(nil), params...)
	c.builtin = true
	if t.Build != nil {
		t.Build(c, c.TypeParams)
	}
	t.instances[key] = c
	log.Debugf("applied template %s to <%s>", e.Names.Name(t.Name.Name), key)
	return c, nil
}

// Template returns the template c was applied from, or nil.
func (c *Class) Template() *Template { return c.template }
