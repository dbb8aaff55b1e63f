package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/batch"
)

// RegisterBatchTools adds the batch editing and merge tools for mgr.
func RegisterBatchTools(s *Server, mgr *batch.Manager) {
	s.AddTool(addFilesTool(mgr))
	s.AddTool(listFilesTool(mgr))
	s.AddTool(removeFileTool(mgr))
	s.AddTool(moveFileTool(mgr))
	s.AddTool(clearFilesTool(mgr))
	s.AddTool(mergeFilesTool(mgr))
	s.AddTool(dismissErrorTool(mgr))
}

func addFilesTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "add_files",
		Description: "Stage PDF files for merging. Files are appended in the given order. Non-PDF files are skipped; if any PDF exceeds 10MB nothing is added.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Paths to the files to stage, in order",
				},
			},
			"required": []string{"paths"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			paths, err := stringSlice(args, "paths")
			if err != nil {
				return ToolResult{}, err
			}

			files := make([]pdfmerge.File, 0, len(paths))
			for _, p := range paths {
				f, err := batch.FileFromPath(p)
				if err != nil {
					return ToolResult{}, err
				}
				files = append(files, f)
			}

			rep, err := mgr.Admit(files...)
			if err != nil {
				return ToolResult{}, err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Added %d file(s); %d staged", rep.Admitted, mgr.Len())
			if len(rep.NotPDF) > 0 {
				fmt.Fprintf(&b, "\nSkipped (not PDF): %s", strings.Join(rep.NotPDF, ", "))
			}
			return textResult(b.String()), nil
		},
	}
}

func listFilesTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "list_files",
		Description: "List the staged files in merge order, with their ids, preview URLs and preview resource URIs.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			jsonBytes, err := json.MarshalIndent(snapshot(mgr), "", "  ")
			if err != nil {
				return ToolResult{}, err
			}
			return textResult(string(jsonBytes)), nil
		},
	}
}

func removeFileTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "remove_file",
		Description: "Remove a staged file by id. Unknown ids are ignored.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the staged file, as returned by list_files",
				},
			},
			"required": []string{"id"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			id, _ := args["id"].(string)
			if err := mgr.Remove(id); err != nil {
				return ToolResult{}, err
			}
			return textResult(fmt.Sprintf("%d file(s) staged", mgr.Len())), nil
		},
	}
}

func moveFileTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "move_file",
		Description: "Swap a staged file with its neighbour. Moving the first file up or the last file down does nothing.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"index": map[string]interface{}{
					"type":        "number",
					"description": "Zero-based position of the file",
				},
				"direction": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"up", "down"},
					"description": "Direction to move the file",
				},
			},
			"required": []string{"index", "direction"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			index, ok := args["index"].(float64)
			if !ok {
				return ToolResult{}, fmt.Errorf("missing 'index' argument")
			}
			dir, err := parseDirection(args["direction"])
			if err != nil {
				return ToolResult{}, err
			}
			if err := mgr.Move(int(index), dir); err != nil {
				return ToolResult{}, err
			}
			return textResult(fileOrder(mgr)), nil
		},
	}
}

func clearFilesTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "clear_files",
		Description: "Remove every staged file.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			if err := mgr.Clear(); err != nil {
				return ToolResult{}, err
			}
			return textResult("Batch cleared"), nil
		},
	}
}

func mergeFilesTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "merge_files",
		Description: "Send the staged files, in order, to the merge service and save the result as merged.pdf. Requires at least 2 files.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			res, err := mgr.Submit(ctx)
			if err != nil {
				return ToolResult{}, err
			}
			return textResult(fmt.Sprintf("Merged %d files into %s (%d bytes)", mgr.Len(), res.Location, res.Size)), nil
		},
	}
}

func dismissErrorTool(mgr *batch.Manager) Tool {
	return Tool{
		Name:        "dismiss_error",
		Description: "Clear the error left by the last add_files or merge_files call.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			msg := mgr.Message()
			mgr.DismissError()
			if msg == "" {
				return textResult("No error to dismiss"), nil
			}
			return textResult("Dismissed: " + msg), nil
		},
	}
}

type fileEntry struct {
	Index           int    `json:"index"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	MediaType       string `json:"mediaType"`
	PreviewURI      string `json:"previewUri"`
	PreviewResource string `json:"previewResource"`
}

type batchSnapshot struct {
	Files     []fileEntry `json:"files"`
	State     string      `json:"state"`
	CanSubmit bool        `json:"canSubmit"`
	Error     string      `json:"error,omitempty"`
}

func snapshot(mgr *batch.Manager) batchSnapshot {
	files := mgr.Files()
	out := batchSnapshot{
		Files:     make([]fileEntry, len(files)),
		State:     mgr.State().String(),
		CanSubmit: mgr.CanSubmit(),
		Error:     mgr.Message(),
	}
	for i, f := range files {
		out.Files[i] = fileEntry{
			Index:           i,
			ID:              f.ID(),
			Name:            f.Name(),
			Size:            f.Size(),
			MediaType:       f.MediaType(),
			PreviewURI:      f.PreviewURL(),
			PreviewResource: previewResource + f.PreviewToken(),
		}
	}
	return out
}

func fileOrder(mgr *batch.Manager) string {
	var b strings.Builder
	for i, f := range mgr.Files() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Name())
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseDirection(v interface{}) (batch.Direction, error) {
	switch d := v.(type) {
	case string:
		switch strings.ToLower(d) {
		case "up":
			return batch.Up, nil
		case "down":
			return batch.Down, nil
		}
	case float64:
		return batch.Direction(d), nil
	}
	return 0, fmt.Errorf("'direction' must be \"up\" or \"down\"")
}

func stringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing '%s' argument", key)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("'%s' must contain only non-empty strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func textResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// errorText is the user-visible text of a tool or resource error.
func errorText(err error) string {
	return pdfmerge.Message(err)
}
