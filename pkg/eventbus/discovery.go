package eventbus

import (
	"fmt"
	"reflect"
	"sort"
)

// discover returns one Handler per marked method of registrant.
//
// Declarations come from Subscribe fields on the registrant struct and every
// struct it embeds, and from each contract whose interface the registrant
// implements. Declarations of the same method are merged: the handler is
// veto-capable if any of them says so. The method invoked is the one in the
// registrant's method set, which is the most-derived implementation once
// embedding promotion is applied, so each method yields one handler no
// matter how many paths declare it.
//
// Handlers are returned in method set order. A registrant without any
// declarations yields no handlers and no error. A registrant with
// declarations must point to a type of non-zero size.
func discover(registrant any, contracts []Contract) ([]*Handler, error) {
	v, err := registrantValue(registrant)
	if err != nil {
		return nil, err
	}
	t := v.Type()

	decls := make(map[string]declaration)
	if err := collectMarkers(t.Elem(), decls, make(map[reflect.Type]bool)); err != nil {
		return nil, &ConfigError{Type: t, Reason: err.Error(), Err: ErrInvalidHandler}
	}
	for _, c := range contracts {
		if !t.Implements(c.iface) {
			continue
		}
		for _, m := range c.markers {
			decls[m.method] = decls[m.method].merge(m.decl)
		}
	}
	if len(decls) == 0 {
		return nil, nil
	}

	handlers := make([]*Handler, 0, len(decls))
	found := make(map[string]bool, len(decls))
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		d, ok := decls[m.Name]
		if !ok {
			continue
		}
		found[m.Name] = true
		h, err := newHandler(registrant, v, m, d)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	if len(found) != len(decls) {
		missing := make([]string, 0, len(decls)-len(found))
		for name := range decls {
			if !found[name] {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return nil, &ConfigError{
			Type:   t,
			Method: missing[0],
			Reason: "method is not exported or not in the method set",
			Err:    ErrInvalidHandler,
		}
	}
	// Registrants are told apart by address, and pointers to distinct
	// zero-size values may be equal.
	if t.Elem().Size() == 0 {
		return nil, &ConfigError{
			Type:   t,
			Reason: "zero-size types have no distinct instances",
			Err:    ErrInvalidRegistrant,
		}
	}
	return handlers, nil
}

// registrantValue checks that registrant is a non-nil pointer.
func registrantValue(registrant any) (reflect.Value, error) {
	if registrant == nil {
		return reflect.Value{}, &ConfigError{Reason: "nil", Err: ErrInvalidRegistrant}
	}
	v := reflect.ValueOf(registrant)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, &ConfigError{Type: v.Type(), Reason: "must be a non-nil pointer", Err: ErrInvalidRegistrant}
	}
	return v, nil
}

// collectMarkers walks st and its embedded structs for Subscribe fields.
func collectMarkers(st reflect.Type, decls map[string]declaration, visited map[reflect.Type]bool) error {
	if st.Kind() != reflect.Struct || visited[st] {
		return nil
	}
	visited[st] = true

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Type == subscribeType {
			tag, ok := f.Tag.Lookup(tagName)
			if !ok {
				return fmt.Errorf("%v field %s has no %s tag", st, f.Name, tagName)
			}
			name, d, err := parseTag(tag)
			if err != nil {
				return err
			}
			decls[name] = decls[name].merge(d)
			continue
		}
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if err := collectMarkers(ft, decls, visited); err != nil {
			return err
		}
	}
	return nil
}
