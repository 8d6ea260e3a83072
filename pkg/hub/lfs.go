package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"kubegems.io/nemopub/pkg/errors"
	"kubegems.io/nemopub/pkg/types"
)

const (
	MediaTypeLFSJson = "application/vnd.git-lfs+json"

	LFSOperationUpload = "upload"
	LFSTransferBasic   = "basic"
	LFSHashAlgo        = "sha256"
)

type LFSObject struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

type LFSAction struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresIn int               `json:"expires_in,omitempty"`
}

type LFSObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type LFSObjectResponse struct {
	LFSObject
	Actions map[string]LFSAction `json:"actions,omitempty"`
	Error   *LFSObjectError      `json:"error,omitempty"`
}

// NeedsUpload is false when the server already has the object.
func (o LFSObjectResponse) NeedsUpload() bool {
	_, ok := o.Actions["upload"]
	return ok
}

type lfsBatchRequest struct {
	Operation string      `json:"operation"`
	Transfers []string    `json:"transfers"`
	Objects   []LFSObject `json:"objects"`
	HashAlgo  string      `json:"hash_algo"`
}

type lfsBatchResponse struct {
	Transfer string              `json:"transfer,omitempty"`
	Objects  []LFSObjectResponse `json:"objects"`
}

func (c *Client) lfsBatchURL(ref types.RepoRef) string {
	return c.RepositoryURL(ref) + ".git/info/lfs/objects/batch"
}

// LFSBatch asks the server where to upload the objects.
func (c *Client) LFSBatch(ctx context.Context, ref types.RepoRef, objects []LFSObject) ([]LFSObjectResponse, error) {
	header := map[string]string{
		"Accept":       MediaTypeLFSJson,
		"Content-Type": MediaTypeLFSJson,
	}
	reqbody := lfsBatchRequest{
		Operation: LFSOperationUpload,
		Transfers: []string{LFSTransferBasic},
		Objects:   objects,
		HashAlgo:  LFSHashAlgo,
	}
	batch := lfsBatchResponse{}
	if _, err := c.request(ctx, http.MethodPost, c.lfsBatchURL(ref), header, reqbody, &batch); err != nil {
		return nil, fmt.Errorf("lfs batch %s: %w", ref.String(), err)
	}
	for _, obj := range batch.Objects {
		if obj.Error != nil {
			return nil, errors.NewLFSObjectRejectedError(obj.Oid, obj.Error.Code, obj.Error.Message)
		}
	}
	return batch.Objects, nil
}

// LFSUpload sends the object content to the upload action and calls verify when asked.
func (c *Client) LFSUpload(ctx context.Context, obj LFSObjectResponse, getbody func() (io.ReadCloser, error)) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("oid", obj.Oid, "size", obj.Size)

	upload, ok := obj.Actions["upload"]
	if !ok {
		log.V(1).Info("lfs object exists on server")
		return nil
	}
	if err := HTTPUpload(ctx, c.httpClient(), upload, obj.Size, getbody); err != nil {
		return fmt.Errorf("lfs upload %s: %w", obj.Oid, err)
	}
	if verify, ok := obj.Actions["verify"]; ok {
		header := map[string]string{
			"Accept":       MediaTypeLFSJson,
			"Content-Type": MediaTypeLFSJson,
		}
		for k, v := range verify.Header {
			header[k] = v
		}
		if _, err := c.request(ctx, http.MethodPost, verify.Href, header, obj.LFSObject, nil); err != nil {
			return fmt.Errorf("lfs verify %s: %w", obj.Oid, err)
		}
	}
	log.V(1).Info("lfs object uploaded")
	return nil
}

// HTTPUpload puts the content to a pre-signed location; only the action headers are sent.
func HTTPUpload(ctx context.Context, cli *http.Client, action LFSAction, contentlen int64, getbody func() (io.ReadCloser, error)) error {
	body, err := getbody()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, action.Href, body)
	if err != nil {
		body.Close()
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}
	req.ContentLength, req.GetBody = contentlen, getbody

	resp, err := cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status: %s %s", resp.Status, body)
	}
	return nil
}
