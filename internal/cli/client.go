package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bwkimmel/jdcp-go/api/computepb"
)

// dialCompute opens a plaintext connection to addr and wraps it as the full
// client-facing ComputeServiceClient, used by every remote-admin command
// (stat, cancel, idle, sync, verify) against a running server.
func dialCompute(addr string) (computepb.ComputeServiceClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return computepb.NewComputeServiceClient(conn), conn, nil
}

func parseJobID(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", s, err)
	}
	return id[:], nil
}

func jobIDString(b []byte) string {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return fmt.Sprintf("%x", b)
	}
	return id.String()
}

// statJob prints one job's current status, as reported by getJobStatus.
func statJob(addr, jobID string) error {
	client, conn, err := dialCompute(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	idBytes, err := parseJobID(jobID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := client.GetJobStatus(ctx, &computepb.GetJobStatusRequest{JobID: idBytes})
	if err != nil {
		return err
	}
	printJobStatus(st)
	return nil
}

func printJobStatus(st *computepb.JobStatus) {
	progress := "indeterminate"
	if st.HasProgress {
		progress = fmt.Sprintf("%.1f%%", st.Progress*100)
	}
	fmt.Printf("%s  %-10s  %-9s  %s  %q\n", jobIDString(st.JobID), jobState(st.State), progress, st.Description, st.Status)
}

func jobState(n int32) string {
	switch n {
	case 0:
		return "New"
	case 1:
		return "Running"
	case 2:
		return "Stalled"
	case 3:
		return "Complete"
	case 4:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// cancelJob issues cancelJob against the server at addr.
func cancelJob(addr, jobID string) error {
	client, conn, err := dialCompute(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	idBytes, err := parseJobID(jobID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.CancelJob(ctx, &computepb.CancelJobRequest{JobID: idBytes})
	return err
}

// setIdleSeconds issues setIdleTime against the server at addr.
func setIdleSeconds(addr string, seconds int) error {
	client, conn, err := dialCompute(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.SetIdleTime(ctx, &computepb.SetIdleTimeRequest{Seconds: int32(seconds)})
	return err
}

// verify dials addr and makes one harmless call (setIdleTime with an
// invalid negative value, which the server rejects without changing
// anything) to confirm the link and the wire codec both work end to end,
// without requiring any job or class to already exist.
func verify(addr string) error {
	client, conn, err := dialCompute(addr)
	if err != nil {
		return fmt.Errorf("cli: dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.SetIdleTime(ctx, &computepb.SetIdleTimeRequest{Seconds: -1})
	// -1 is deliberately invalid: a reply (even an IllegalArgument error)
	// proves the round trip works, since a real transport failure would
	// never get this far to have an application-level error from.
	if err == nil {
		return fmt.Errorf("cli: server at %s accepted an invalid idle time; verification inconclusive", addr)
	}
	return nil
}

// syncDir uploads every regular file under dir as a class definition, named
// after its basename, via setClassDefinition(name, bytes) with no job id
// (a global publish) — the client-side analogue of an on-disk
// class-definition store.
func syncDir(addr, dir string) error {
	client, conn, err := dialCompute(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		name := e.Name()
		if _, err := client.SetClassDefinition(ctx, &computepb.SetClassDefinitionRequest{Name: name, Definition: data}); err != nil {
			return fmt.Errorf("cli: sync %s: %w", name, err)
		}
		fmt.Printf("synced %s (%d bytes)\n", name, len(data))
	}
	return nil
}
