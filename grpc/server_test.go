package grpc

import (
	"context"
	"strings"
	"testing"

	"github.com/matryer/is"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type echoService interface {
	Echo(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

type echoServer struct{}

func (echoServer) Echo(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "empty value")
	}
	return wrapperspb.String(strings.ToUpper(req.GetValue())), nil
}

var echoServiceDesc = grpc.ServiceDesc{
	ServiceName: "test.v1.EchoService",
	HandlerType: (*echoService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Echo",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(echoService).Echo(ctx, in)
			},
		},
	},
}

func marshal(t *testing.T, m proto.Message) []byte {
	t.Helper()
	b, err := proto.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServer_Handle(t *testing.T) {
	t.Run("should dispatch to the registered service", func(t *testing.T) {
		is := is.New(t)
		srv := NewServer()
		srv.RegisterService(&echoServiceDesc, echoServer{})

		respBytes, err := srv.Handle("/test.v1.EchoService/Echo", marshal(t, wrapperspb.String("ping")))
		is.NoErr(err)

		var resp wrapperspb.StringValue
		is.NoErr(proto.Unmarshal(respBytes, &resp))
		is.Equal(resp.GetValue(), "PING")
	})

	t.Run("should reuse the response buffer", func(t *testing.T) {
		is := is.New(t)
		srv := NewServer()
		srv.RegisterService(&echoServiceDesc, echoServer{})

		_, err := srv.Handle("/test.v1.EchoService/Echo", marshal(t, wrapperspb.String("a much longer request")))
		is.NoErr(err)
		size := srv.scratch.Count()

		respBytes, err := srv.Handle("/test.v1.EchoService/Echo", marshal(t, wrapperspb.String("short")))
		is.NoErr(err)
		is.Equal(srv.scratch.Count(), size) // buffer doesn't shrink

		var resp wrapperspb.StringValue
		is.NoErr(proto.Unmarshal(respBytes, &resp))
		is.Equal(resp.GetValue(), "SHORT")
	})

	t.Run("should return the status of the handler", func(t *testing.T) {
		is := is.New(t)
		srv := NewServer()
		srv.RegisterService(&echoServiceDesc, echoServer{})

		_, err := srv.Handle("/test.v1.EchoService/Echo", nil)
		is.Equal(status.Code(err), codes.InvalidArgument)
		is.Equal(status.Convert(err).Message(), "empty value")
	})

	t.Run("should fail on a malformed request", func(t *testing.T) {
		is := is.New(t)
		srv := NewServer()
		srv.RegisterService(&echoServiceDesc, echoServer{})

		_, err := srv.Handle("/test.v1.EchoService/Echo", []byte{0xff, 0xff, 0xff})
		is.True(err != nil)
	})

	tests := []struct {
		name   string
		method string
	}{
		{name: "malformed method name", method: "Echo"},
		{name: "unknown service", method: "/test.v1.OtherService/Echo"},
		{name: "unknown method", method: "/test.v1.EchoService/Shout"},
	}
	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			is := is.New(t)
			srv := NewServer()
			srv.RegisterService(&echoServiceDesc, echoServer{})

			resp, err := srv.Handle(tt.method, nil)
			is.Equal(resp, nil)
			is.Equal(status.Code(err), codes.Unimplemented)
		})
	}
}
