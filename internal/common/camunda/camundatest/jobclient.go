// internal/common/camunda/camundatest/jobclient.go

// Package camundatest provides an in-memory worker.JobClient that records
// the commands a job handler sends.
package camundatest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

type CommandKind string

const (
	CommandComplete CommandKind = "complete"
	CommandFail     CommandKind = "fail"
	CommandThrow    CommandKind = "throw"
)

// Command is one request as it reached the gateway.
type Command struct {
	Kind         CommandKind
	JobKey       int64
	Retries      int32
	ErrorCode    string
	ErrorMessage string
	Variables    string
}

// DecodeVariables unmarshals the command's variables document.
func (c Command) DecodeVariables() (map[string]interface{}, error) {
	var vars map[string]interface{}
	if c.Variables == "" {
		return vars, nil
	}
	return vars, json.Unmarshal([]byte(c.Variables), &vars)
}

// JobClient builds real zeebe commands on top of a recording gateway. Only
// the job commands are implemented; any other gateway call panics.
type JobClient struct {
	gateway *recordingGateway
}

func NewJobClient() *JobClient {
	return &JobClient{gateway: &recordingGateway{}}
}

// FailSends makes every Send return err.
func (c *JobClient) FailSends(err error) {
	c.gateway.mu.Lock()
	defer c.gateway.mu.Unlock()
	c.gateway.sendErr = err
}

// Commands returns everything sent so far, in order.
func (c *JobClient) Commands() []Command {
	c.gateway.mu.Lock()
	defer c.gateway.mu.Unlock()
	return append([]Command(nil), c.gateway.sent...)
}

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

// NewJob returns an activated job carrying variables.
func NewJob(key int64, jobType string, retries int32, variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               jobType,
		Retries:            retries,
		Variables:          variables,
		ProcessInstanceKey: key * 10,
	}}
}

func noRetry(context.Context, error) bool { return false }

type recordingGateway struct {
	pb.GatewayClient

	mu      sync.Mutex
	sent    []Command
	sendErr error
}

func (g *recordingGateway) record(cmd Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, cmd)
	return g.sendErr
}

func (g *recordingGateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	err := g.record(Command{Kind: CommandComplete, JobKey: in.JobKey, Variables: in.Variables})
	if err != nil {
		return nil, err
	}
	return &pb.CompleteJobResponse{}, nil
}

func (g *recordingGateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	err := g.record(Command{
		Kind:         CommandFail,
		JobKey:       in.JobKey,
		Retries:      in.Retries,
		ErrorMessage: in.ErrorMessage,
		Variables:    in.Variables,
	})
	if err != nil {
		return nil, err
	}
	return &pb.FailJobResponse{}, nil
}

func (g *recordingGateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	err := g.record(Command{
		Kind:         CommandThrow,
		JobKey:       in.JobKey,
		ErrorCode:    in.ErrorCode,
		ErrorMessage: in.ErrorMessage,
		Variables:    in.Variables,
	})
	if err != nil {
		return nil, err
	}
	return &pb.ThrowErrorResponse{}, nil
}
