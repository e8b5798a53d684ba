package counter

import "github.com/govm-net/counter/core"

func Value(ctx core.Context) (ValueResp, error) {
	counter, err := COUNTER.Load(ctx)
	if err != nil {
		return ValueResp{}, err
	}
	return ValueResp{Value: counter}, nil
}

func Owner(ctx core.Context) (OwnerResp, error) {
	owner, err := OWNER.Load(ctx)
	if err != nil {
		return OwnerResp{}, err
	}
	return OwnerResp{Owner: owner}, nil
}
