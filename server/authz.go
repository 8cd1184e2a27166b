package server

import (
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/pkg/errors"
)

// DefaultACLAuthzModel is the Casbin model used to authorize readings. A
// policy line `p, <instance_id>, <subject>, publish` allows a device to
// publish on a subject, and the "root" instance may publish anywhere.
// Ref: https://github.com/casbin/casbin/blob/master/examples/basic_with_root_model.conf
var DefaultACLAuthzModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act || r.sub == "root"
`

const publishAction = "publish"

// authzEnforcer decides which device instances may publish readings.
type authzEnforcer struct {
	enforcer  *casbin.Enforcer
	authzLock sync.RWMutex
}

// newAuthzEnforcer loads the policy stored in policyFile.
func newAuthzEnforcer(policyFile string) (*authzEnforcer, error) {
	m, err := model.NewModelFromString(DefaultACLAuthzModel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load authorization model")
	}
	enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(policyFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load authorization policy")
	}
	return &authzEnforcer{enforcer: enforcer}, nil
}

// authorized reports whether instanceID may publish on subject.
func (a *authzEnforcer) authorized(instanceID, subject string) (bool, error) {
	a.authzLock.RLock()
	defer a.authzLock.RUnlock()
	return a.enforcer.Enforce(instanceID, subject, publishAction)
}

// reload reads the policy file again.
func (a *authzEnforcer) reload() error {
	a.authzLock.Lock()
	defer a.authzLock.Unlock()
	return a.enforcer.LoadPolicy()
}
