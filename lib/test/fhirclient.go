package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/SanteonNL/bptrafficlight/lib/must"
	"github.com/SanteonNL/bptrafficlight/lib/to"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/google/uuid"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

type BaseResource struct {
	Id   string `json:"id"`
	Type string `json:"resourceType"`
	Data []byte `json:"-"`
}

var _ fhirclient.Client = &StubFHIRClient{}

// StubFHIRClient is an in-memory FHIR client that supports the searches performed on Observation and Patient resources.
type StubFHIRClient struct {
	Resources []any
	Metadata  fhir.CapabilityStatement
	// CreatedResources is a list of resources that have been created using this client.
	// It's not used by the client itself, but can be used by tests to verify that the client has been used correctly.
	CreatedResources map[string][]any
	// SearchQueries records every search performed, keyed by resource type.
	SearchQueries map[string][]url.Values
	// Error is an error that will be returned by all methods of this client.
	Error error
	// CreateError is returned by Create only, so reads keep working.
	CreateError error
}

func (s *StubFHIRClient) Read(path string, target any, opts ...fhirclient.Option) error {
	return s.ReadWithContext(context.Background(), path, target, opts...)
}

func (s *StubFHIRClient) ReadWithContext(_ context.Context, path string, target any, _ ...fhirclient.Option) error {
	if s.Error != nil {
		return s.Error
	}
	if path == "metadata" {
		unmarshalInto(s.Metadata, target)
		return nil
	}
	for _, resource := range s.Resources {
		var baseResource BaseResource
		unmarshalInto(resource, &baseResource)
		if path == baseResource.Type+"/"+baseResource.Id {
			if err := json.Unmarshal(baseResource.Data, target); err != nil {
				panic(err)
			}
			return nil
		}
	}
	return fhirclient.OperationOutcomeError{
		HttpStatusCode: http.StatusNotFound,
	}
}

func (s *StubFHIRClient) Create(resource any, result any, opts ...fhirclient.Option) error {
	return s.CreateWithContext(context.Background(), resource, result, opts...)
}

func (s *StubFHIRClient) CreateWithContext(_ context.Context, resource any, result any, _ ...fhirclient.Option) error {
	if s.Error != nil {
		return s.Error
	}
	if s.CreateError != nil {
		return s.CreateError
	}
	var resourceAsMap = make(map[string]any)
	unmarshalInto(resource, &resourceAsMap)
	resourceType, _ := resourceAsMap["resourceType"].(string)
	if resourceType == "" {
		return fmt.Errorf("can't defer resource type of %T", resource)
	}
	if resourceAsMap["id"] == nil {
		resourceAsMap["id"] = uuid.NewString()
	} else {
		for _, existingResource := range s.Resources {
			var existing BaseResource
			unmarshalInto(existingResource, &existing)
			if resourceType == existing.Type && existing.Id == resourceAsMap["id"] {
				return errors.New("resource already exists")
			}
		}
	}
	s.Resources = append(s.Resources, resourceAsMap)
	if s.CreatedResources == nil {
		s.CreatedResources = make(map[string][]any)
	}
	s.CreatedResources[resourceType] = append(s.CreatedResources[resourceType], resource)
	if result != nil {
		unmarshalInto(resourceAsMap, result)
	}
	return nil
}

func (s *StubFHIRClient) Search(resourceType string, query url.Values, target any, opts ...fhirclient.Option) error {
	return s.SearchWithContext(context.Background(), resourceType, query, target, opts...)
}

func (s *StubFHIRClient) SearchWithContext(_ context.Context, resourceType string, query url.Values, target any, _ ...fhirclient.Option) error {
	if s.Error != nil {
		return s.Error
	}
	if s.SearchQueries == nil {
		s.SearchQueries = make(map[string][]url.Values)
	}
	s.SearchQueries[resourceType] = append(s.SearchQueries[resourceType], query)

	var candidates []BaseResource
	for _, res := range s.Resources {
		var baseResource BaseResource
		unmarshalInto(res, &baseResource)
		if baseResource.Type == resourceType {
			candidates = append(candidates, baseResource)
		}
	}
	filterCandidates := func(predicate func(BaseResource) bool) {
		var filtered []BaseResource
		for _, candidate := range candidates {
			if predicate(candidate) {
				filtered = append(filtered, candidate)
			}
		}
		candidates = filtered
	}

	count := 100
	startAt := 0
	for name, values := range query {
		if len(values) != 1 {
			return fmt.Errorf("multiple values for query parameter: %s", name)
		}
		value := values[0]
		switch name {
		case "_id":
			filterCandidates(func(candidate BaseResource) bool {
				return candidate.Id == value
			})
		case "patient", "subject":
			filterCandidates(func(candidate BaseResource) bool {
				fields := searchFieldsOf(candidate)
				if fields.Subject == nil {
					return false
				}
				ref := to.EmptyString(fields.Subject.Reference)
				return ref == value || ref == "Patient/"+value
			})
		case "code":
			filterCandidates(func(candidate BaseResource) bool {
				fields := searchFieldsOf(candidate)
				return fields.Code != nil && matchesToken(*fields.Code, value)
			})
		case "category":
			filterCandidates(func(candidate BaseResource) bool {
				for _, category := range searchFieldsOf(candidate).Category {
					if matchesToken(category, value) {
						return true
					}
				}
				return false
			})
		case "_sort":
			if strings.TrimPrefix(value, "-") != "date" {
				return fmt.Errorf("unsupported _sort value: %s", value)
			}
			descending := strings.HasPrefix(value, "-")
			sort.SliceStable(candidates, func(i, j int) bool {
				left, right := effectiveDate(candidates[i]), effectiveDate(candidates[j])
				if descending {
					return left > right
				}
				return left < right
			})
		case "_start_at":
			// custom parameter for pagination using 'next' link
			var err error
			startAt, err = strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid _start_at parameter value (must be an int): %s", value)
			}
			if startAt < 0 {
				return fmt.Errorf("invalid _start_at parameter value (must be >= 0): %s", value)
			}
		case "_count":
			var err error
			count, err = strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid _count parameter value: %s", value)
			}
		default:
			return fmt.Errorf("unsupported query parameter: %s", name)
		}
	}

	result := fhir.Bundle{
		Type: fhir.BundleTypeSearchset,
	}
	idxStart := startAt
	idxEnd := idxStart + count
	if idxStart > len(candidates) {
		candidates = []BaseResource{}
	} else {
		if idxEnd > len(candidates) {
			idxEnd = len(candidates)
		} else {
			nextURLQuery, _ := url.ParseQuery(query.Encode())
			nextURLQuery.Set("_start_at", strconv.Itoa(idxEnd))
			result.Link = append(result.Link, fhir.BundleLink{
				Relation: "next",
				Url:      "https://example.com/fhir/" + resourceType + "?" + nextURLQuery.Encode(),
			})
		}
		candidates = candidates[idxStart:idxEnd]
	}
	for _, candidate := range candidates {
		result.Entry = append(result.Entry, fhir.BundleEntry{
			Resource: candidate.Data,
		})
	}
	unmarshalInto(result, target)
	return nil
}

func (s *StubFHIRClient) Update(path string, resource any, result any, opts ...fhirclient.Option) error {
	return s.UpdateWithContext(context.Background(), path, resource, result, opts...)
}

func (s *StubFHIRClient) UpdateWithContext(_ context.Context, _ string, _ any, _ any, _ ...fhirclient.Option) error {
	if s.Error != nil {
		return s.Error
	}
	return errors.New("update not supported by stub")
}

func (s *StubFHIRClient) Delete(path string, opts ...fhirclient.Option) error {
	return s.DeleteWithContext(context.Background(), path, opts...)
}

func (s *StubFHIRClient) DeleteWithContext(_ context.Context, _ string, _ ...fhirclient.Option) error {
	if s.Error != nil {
		return s.Error
	}
	return errors.New("delete not supported by stub")
}

func (s *StubFHIRClient) Path(path ...string) *url.URL {
	return must.ParseURL("stub:" + strings.Join(path, "/"))
}

// searchFields holds the elements the stub can search on, shared by the resource types used in tests.
type searchFields struct {
	Subject           *fhir.Reference         `json:"subject"`
	Code              *fhir.CodeableConcept   `json:"code"`
	Category          []fhir.CodeableConcept  `json:"category"`
	EffectiveDateTime *string                 `json:"effectiveDateTime"`
	EffectivePeriod   *struct{ Start string } `json:"effectivePeriod"`
}

func searchFieldsOf(resource BaseResource) searchFields {
	var fields searchFields
	if err := json.Unmarshal(resource.Data, &fields); err != nil {
		panic(err)
	}
	return fields
}

func matchesToken(concept fhir.CodeableConcept, token string) bool {
	for _, coding := range concept.Coding {
		if to.EmptyString(coding.System)+"|"+to.EmptyString(coding.Code) == token || to.EmptyString(coding.Code) == token {
			return true
		}
	}
	return false
}

func effectiveDate(resource BaseResource) string {
	fields := searchFieldsOf(resource)
	if fields.EffectiveDateTime != nil {
		return *fields.EffectiveDateTime
	}
	if fields.EffectivePeriod != nil {
		return fields.EffectivePeriod.Start
	}
	return ""
}

func unmarshalInto(resource any, target any) {
	resJSON, err := json.Marshal(resource)
	if err != nil {
		panic(err)
	}
	switch t := target.(type) {
	case *[]byte:
		*t = resJSON
	default:
		if err := json.Unmarshal(resJSON, target); err != nil {
			panic(err)
		}
		if baseResource, ok := target.(*BaseResource); ok {
			baseResource.Data = resJSON
		}
	}
}
