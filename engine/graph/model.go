// Package graph stores family members in Neo4j and answers lineage queries.
package graph

import (
	"strings"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// MemberLabel is the node label of stored members.
const MemberLabel = "Member"

// Relationship types derived from member links.
const (
	RelFatherOf = "FATHER_OF"
	RelMotherOf = "MOTHER_OF"
	RelParentOf = "PARENT_OF" // from explicit children lists
	RelSpouseOf = "SPOUSE_OF"
)

const attrPrefix = "attr_"

// memberProps maps a member onto node properties. Absent optional values are
// nil and are dropped when the map replaces the node's properties.
func memberProps(m domain.Member) map[string]any {
	props := map[string]any{
		"id":           m.ID,
		"father_id":    nilIfEmpty(m.FatherID),
		"mother_id":    nilIfEmpty(m.MotherID),
		"spouse_id":    nilIfEmpty(m.SpouseID),
		"children_ids": nil,
		"generation":   nil,
		"gender":       nilIfEmpty(string(m.Gender)),
		"given_name":   nilIfEmpty(m.Name.Given),
		"family_name":  nilIfEmpty(m.Name.Family),
		"display_name": nilIfEmpty(m.Name.Display),
		"birth_date":   nilIfEmpty(m.BirthDate),
		"death_date":   nilIfEmpty(m.DeathDate),
	}
	if len(m.ChildrenIDs) > 0 {
		props["children_ids"] = append([]string(nil), m.ChildrenIDs...)
	}
	if m.Generation != nil {
		props["generation"] = int64(*m.Generation)
	}
	for k, v := range m.Attributes {
		props[attrPrefix+k] = v
	}
	return props
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// memberFromProps constructs a Member from Neo4j node properties.
func memberFromProps(props map[string]any) domain.Member {
	m := domain.Member{
		ID:          strProp(props, "id"),
		FatherID:    strProp(props, "father_id"),
		MotherID:    strProp(props, "mother_id"),
		SpouseID:    strProp(props, "spouse_id"),
		ChildrenIDs: listProp(props, "children_ids"),
		Gender:      domain.Gender(strProp(props, "gender")),
		Name: domain.Name{
			Given:   strProp(props, "given_name"),
			Family:  strProp(props, "family_name"),
			Display: strProp(props, "display_name"),
		},
		BirthDate: strProp(props, "birth_date"),
		DeathDate: strProp(props, "death_date"),
	}
	if g, ok := props["generation"].(int64); ok {
		m.Generation = domain.Gen(int(g))
	}
	for k, v := range props {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(k, attrPrefix) || len(k) == len(attrPrefix) {
			continue
		}
		if m.Attributes == nil {
			m.Attributes = make(map[string]string)
		}
		m.Attributes[k[len(attrPrefix):]] = s
	}
	return m
}

func memberFromRecord(rec *neo4j.Record) (domain.Member, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Member{}, err
	}
	return memberFromProps(node.Props), nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func listProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}
