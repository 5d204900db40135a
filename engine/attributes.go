package engine

import (
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine/predicate"
)

// Attribute names understood by predicates in addition to the free-form attributes.
const (
	AttrDisplayName      = "kMDItemDisplayName"
	AttrFSName           = "kMDItemFSName"
	AttrPath             = "kMDItemPath"
	AttrFSSize           = "kMDItemFSSize"
	AttrContentType      = "kMDItemContentType"
	AttrModificationDate = "kMDItemContentModificationDate"
	AttrCreationDate     = "kMDItemContentCreationDate"
	AttrLastUsedDate     = "kMDItemLastUsedDate"
	AttrBundleIdentifier = "kMDItemCFBundleIdentifier"
	AttrVersion          = "kMDItemVersion"
	AttrKind             = "kMDItemKind"
)

type attributes struct {
	meta *data.Metadata
}

func (a attributes) Attribute(name string) (predicate.Value, bool) {
	m := a.meta
	switch name {
	case AttrDisplayName:
		if display := m.GetAttribute(data.AttributeDisplayName, ""); display != "" {
			return predicate.Text(display), true
		}
		return predicate.Text(m.Name()), true
	case AttrFSName:
		return predicate.Text(m.Name()), true
	case AttrPath:
		return predicate.Text(m.Key), true
	case AttrFSSize:
		return predicate.Number(float64(m.Size)), true
	case AttrContentType:
		return predicate.Text(string(m.ContentType)), m.ContentType != ""
	case AttrKind:
		return predicate.Text(m.Type.String()), true
	case AttrModificationDate:
		return predicate.TimeValue(m.ModifyTime), !m.ModifyTime.IsZero()
	case AttrCreationDate:
		return predicate.TimeValue(m.CreateTime), !m.CreateTime.IsZero()
	case AttrLastUsedDate:
		return predicate.TimeValue(m.AccessTime), !m.AccessTime.IsZero()
	case AttrBundleIdentifier:
		return a.attribute(data.AttributeBundleIdentifier)
	case AttrVersion:
		return a.attribute(data.AttributeVersion)
	}

	return a.attribute(name)
}

func (a attributes) attribute(key string) (predicate.Value, bool) {
	value, ok := a.meta.Attributes[key]
	return predicate.Text(value), ok
}

func (a attributes) Texts() []string {
	texts := []string{a.meta.Name(), a.meta.Key}
	if a.meta.ContentType != "" {
		texts = append(texts, string(a.meta.ContentType))
	}
	for _, value := range a.meta.Attributes {
		texts = append(texts, value)
	}
	return texts
}
