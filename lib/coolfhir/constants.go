package coolfhir

// FHIRContentType is the content-type for FHIR payloads
const FHIRContentType = "application/fhir+json"

const AcceptHeader = "Accept"

// LOINCSystem is the code system URI for LOINC codes.
const LOINCSystem = "http://loinc.org"

// UCUMSystem is the code system URI for UCUM units.
const UCUMSystem = "http://unitsofmeasure.org"

// ObservationCategorySystem is the code system URI for FHIR observation categories.
const ObservationCategorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"
