package handler

import (
	"strings"

	dErrors "beacon/pkg/domain-errors"
)

// NotifyGroupItem is one element of the POST /notifyGroup body.
type NotifyGroupItem struct {
	Operation    string        `json:"operation"`
	GroupIDArray []GroupTarget `json:"groupIdArray"`
}

// GroupTarget is a room and the payload pushed to it.
type GroupTarget struct {
	GroupName string         `json:"groupName"`
	Data      map[string]any `json:"data"`
}

// NotifyGroupRequest is the POST /notifyGroup body.
type NotifyGroupRequest []NotifyGroupItem

// Validate implements httputil.Validatable.
func (r *NotifyGroupRequest) Validate() error {
	if r == nil || *r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body must be a list")
	}
	for i, item := range *r {
		for j, target := range item.GroupIDArray {
			if strings.TrimSpace(target.GroupName) == "" {
				return dErrors.New(dErrors.CodeValidation, "groupName is required")
			}
			if target.Data == nil {
				return dErrors.New(dErrors.CodeValidation, "data is required for "+target.GroupName)
			}
			(*r)[i].GroupIDArray[j].GroupName = strings.TrimSpace(target.GroupName)
		}
	}
	return nil
}
