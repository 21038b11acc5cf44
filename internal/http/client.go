package http

import (
	"fmt"
	"net/rpc"

	"DistMR/internal/types"
)

// Client is a worker's connection to the coordinator. Calls are synchronous.
type Client struct {
	addr    string
	service string
	rpc     *rpc.Client
}

// Dial connects to the coordinator's RPC endpoint at addr.
func Dial(addr, service string) (*Client, error) {
	c, err := rpc.DialHTTP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator at %s: %w", addr, err)
	}
	return &Client{addr: addr, service: service, rpc: c}, nil
}

func (c *Client) call(method string, args, reply interface{}) error {
	if err := c.rpc.Call(c.service+"."+method, args, reply); err != nil {
		return fmt.Errorf("rpc %s to %s failed: %w", method, c.addr, err)
	}
	return nil
}

func (c *Client) RequestTask(args *types.RequestTaskArgs) (*types.RequestTaskReply, error) {
	reply := &types.RequestTaskReply{}
	if err := c.call("RequestTask", args, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) NotifyTaskDone(args *types.TaskDoneArgs) (*types.TaskDoneReply, error) {
	reply := &types.TaskDoneReply{}
	if err := c.call("NotifyTaskDone", args, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}
