//
//  Copyright © Manetu Inc. All rights reserved.
//

package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var logger = logging.GetLogger("authz.bundle")

const agent = "bundle"

// Parse decodes a single bundle document.  name identifies the source in
// error messages.
func Parse(name string, data []byte) (*Bundle, error) {
	var preamble Preamble
	if err := yaml.Unmarshal(data, &preamble); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}

	if preamble.Kind != Kind {
		return nil, common.NewErrorf(common.KindBadConfiguration, "expected %s got %s", Kind, preamble.Kind)
	}

	switch preamble.APIVersion {
	case APIVersionV1:
		return parseV1(name, data)
	}

	return nil, common.NewErrorf(common.KindBadConfiguration,
		"unsupported %s API Version %s", Kind, preamble.APIVersion)
}

func parseV1(name string, data []byte) (*Bundle, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	if b.Metadata.Name == "" {
		b.Metadata.Name = name
	}

	ve := &Errors{}
	checkSchema(&b, b.Metadata.Name, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile parses the bundle at path.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- bundles are operator-provided paths
	if err != nil {
		return nil, err
	}
	return Parse(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
}

// Load parses every path and merges the results.  A directory contributes
// each of its .yml and .yaml files in name order.
func Load(paths ...string) (*Bundle, error) {
	var bundles []*Bundle
	for _, path := range paths {
		files, err := expand(path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			b, err := LoadFile(file)
			if err != nil {
				return nil, err
			}
			logger.Debugf(agent, "load", "loaded bundle %s from %s", b.Metadata.Name, file)
			bundles = append(bundles, b)
		}
	}
	if len(bundles) == 0 {
		return nil, common.NewError(common.KindBadConfiguration, "no bundles found")
	}
	return Merge(bundles...), nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yml" || ext == ".yaml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Merge combines bundles into one.  When an entity is defined more than once
// the first definition is kept; group and tenant members are united.
func Merge(bundles ...*Bundle) *Bundle {
	if len(bundles) == 1 {
		return bundles[0]
	}

	names := make([]string, 0, len(bundles))
	out := &Bundle{Preamble: Preamble{APIVersion: APIVersionV1, Kind: Kind}}
	for _, b := range bundles {
		names = append(names, b.Metadata.Name)
		s, e := b.Spec, b.Spec.Engine

		out.Spec.Groups = unite(out.Spec.Groups, s.Groups, func(g Group) string { return g.ID },
			func(a, b Group) Group { a.Members = union(a.Members, b.Members); return a })
		out.Spec.Tenants = unite(out.Spec.Tenants, s.Tenants, func(t Tenant) string { return t.ID },
			func(a, b Tenant) Tenant {
				a.Users, a.Groups = union(a.Users, b.Users), union(a.Groups, b.Groups)
				return a
			})
		out.Spec.Authorizations = unite(out.Spec.Authorizations, s.Authorizations, Authorization.scope, first[Authorization])

		oe := &out.Spec.Engine
		oe.Deployments = unite(oe.Deployments, e.Deployments, func(d Deployment) string { return d.ID }, first[Deployment])
		oe.Definitions = unite(oe.Definitions, e.Definitions, func(d Definition) string { return d.ID }, first[Definition])
		oe.Instances = unite(oe.Instances, e.Instances, func(i Instance) string { return i.ID }, first[Instance])
		oe.Tasks = unite(oe.Tasks, e.Tasks, func(t Task) string { return t.ID }, first[Task])
		oe.JobDefinitions = unite(oe.JobDefinitions, e.JobDefinitions, func(j JobDefinition) string { return j.ID }, first[JobDefinition])
		oe.Jobs = unite(oe.Jobs, e.Jobs, func(j Job) string { return j.ID }, first[Job])
		oe.Incidents = unite(oe.Incidents, e.Incidents, func(i Incident) string { return i.ID }, first[Incident])
		oe.Variables = unite(oe.Variables, e.Variables, func(v Variable) string {
			return v.ProcessInstanceID + "|" + v.TaskID + "|" + v.Name
		}, first[Variable])

		for k, v := range e.Properties {
			if oe.Properties == nil {
				oe.Properties = make(map[string]string)
			}
			if _, ok := oe.Properties[k]; !ok {
				oe.Properties[k] = v
			}
		}
	}
	out.Metadata.Name = strings.Join(names, ",")
	return out
}

func first[T any](a, _ T) T { return a }

// unite appends the items of next whose key is new to acc, combining
// duplicates into the earlier item with join.
func unite[T any](acc, next []T, key func(T) string, join func(a, b T) T) []T {
	index := make(map[string]int, len(acc))
	for i, v := range acc {
		index[key(v)] = i
	}
	for _, v := range next {
		k := key(v)
		if i, ok := index[k]; ok {
			acc[i] = join(acc[i], v)
			continue
		}
		index[k] = len(acc)
		acc = append(acc, v)
	}
	return acc
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			a = append(a, v)
		}
	}
	return a
}
