package events

import (
	"encoding/json"
	"fmt"
)

// SetTriageData sets the Data field with TriageData in a type-safe way.
func (e *GuardianEvent) SetTriageData(data TriageData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TriageData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetTriageData retrieves TriageData from the Data field.
func (e *GuardianEvent) GetTriageData() (*TriageData, error) {
	var data TriageData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TriageData: %w", err)
	}
	return &data, nil
}

// SetCheckupData sets the Data field with CheckupData in a type-safe way.
func (e *GuardianEvent) SetCheckupData(data CheckupData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CheckupData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCheckupData retrieves CheckupData from the Data field.
func (e *GuardianEvent) GetCheckupData() (*CheckupData, error) {
	var data CheckupData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CheckupData: %w", err)
	}
	return &data, nil
}

// SetInterventionData sets the Data field with InterventionData in a type-safe way.
func (e *GuardianEvent) SetInterventionData(data InterventionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert InterventionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetInterventionData retrieves InterventionData from the Data field.
func (e *GuardianEvent) GetInterventionData() (*InterventionData, error) {
	var data InterventionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse InterventionData: %w", err)
	}
	return &data, nil
}

// SetRemediationData sets the Data field with RemediationData in a type-safe way.
func (e *GuardianEvent) SetRemediationData(data RemediationData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RemediationData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// SetCleanupData sets the Data field with CleanupData in a type-safe way.
func (e *GuardianEvent) SetCleanupData(data CleanupData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CleanupData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
