package cli

import (
	"fmt"

	"github.com/dgallion1/stockclass/internal/classification"
	"github.com/dgallion1/stockclass/internal/selection"
	"github.com/dgallion1/stockclass/internal/workflow"
)

// visitor receives each node of the classification tree in display order.
// depth is 0 for macros and 3 for basic industries.
type visitor func(depth int, name, code string) (stop bool)

// walk drives the workflow's selection through every path of the loaded
// index. It leaves the selection wherever the walk stopped.
func walk(wf *workflow.Workflow, visit visitor) error {
	for _, macro := range wf.State().MacroOptions {
		if visit(0, macro, "") {
			return nil
		}
		if err := wf.Select(selection.LevelMacro, macro); err != nil {
			return err
		}
		for _, sector := range wf.State().SectorOptions {
			if visit(1, sector, "") {
				return nil
			}
			if err := wf.Select(selection.LevelSector, sector); err != nil {
				return err
			}
			for _, industry := range wf.State().IndustryOptions {
				if visit(2, industry, "") {
					return nil
				}
				if err := wf.Select(selection.LevelIndustry, industry); err != nil {
					return err
				}
				for _, b := range wf.State().BasicOptions {
					if visit(3, b.Name, b.Code) {
						return wf.Select(selection.LevelBasic, b.Code)
					}
				}
			}
		}
	}
	return nil
}

// selectBasic selects the path that leads to the basic industry code.
func selectBasic(wf *workflow.Workflow, code string) (classification.BasicOption, error) {
	var found classification.BasicOption
	err := walk(wf, func(depth int, name, c string) bool {
		if depth == 3 && c == code {
			found = classification.BasicOption{Name: name, Code: c}
			return true
		}
		return false
	})
	if err != nil {
		return found, err
	}
	if found.Code == "" {
		return found, fmt.Errorf("basic industry %q not found in the classification", code)
	}
	return found, nil
}
