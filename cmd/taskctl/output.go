package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"taskdesk/domain"
)

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func assignee(t domain.Task) string {
	if t.AssignedEmployee == nil {
		return "-"
	}
	if t.AssignedEmployee.Name != "" {
		return t.AssignedEmployee.Name
	}
	return t.AssignedEmployee.ID
}

func printTasks(w io.Writer, list []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDUE\tASSIGNEE\tTITLE")
	for _, t := range list {
		due := t.DueDate.String()
		if due == "" {
			due = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, due, assignee(t), t.Title)
	}
	return tw.Flush()
}

func printTask(w io.Writer, t domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", t.Description)
	}
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "Due:\t%s\n", t.DueDate)
	fmt.Fprintf(tw, "Assignee:\t%s\n", assignee(t))
	return tw.Flush()
}
