package api

import (
	"strings"

	"taskdesk/domain"
)

func (c *Client) check(in any) error {
	err := c.validate.Struct(in)
	if err == nil {
		return nil
	}
	if problems, ok := domain.ValidationProblems(err); ok {
		return &ValidationError{Problems: problems}
	}
	return err
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Problems: []string{kind + " id is required"}}
	}
	return nil
}
