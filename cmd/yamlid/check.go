package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spirius/yamlid"
)

func (a *app) checkCommand() *cobra.Command {
	var (
		property string
		refKeys  []string
	)

	cmd := &cobra.Command{
		Use:   "check SOURCE...",
		Short: "Report object identity usage and broken references",
		Long: `Check reads every SOURCE (a path, glob pattern, file:// or s3:// URL)
and reports anchors, aliases, id properties and id references found
under the reference keys. It fails when a reference cannot be resolved
or an id is defined twice.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("id-property") && a.config.IDProperty != "" {
				property = a.config.IDProperty
			}
			if !cmd.Flags().Changed("ref-key") && len(a.config.RefKeys) > 0 {
				refKeys = a.config.RefKeys
			}

			var resources []yamlid.Resource
			for _, source := range args {
				if strings.ContainsAny(source, "*?[") && !strings.Contains(source, "?versionId=") {
					matched, err := a.loader.LoadPattern(source)
					if err != nil {
						return errors.Trace(err)
					}
					if len(matched) == 0 {
						a.logger.Warn("no sources match", "pattern", source)
					}
					resources = append(resources, matched...)
					continue
				}
				data, err := a.loader.Load(source)
				if err != nil {
					return errors.Trace(err)
				}
				resources = append(resources, yamlid.Resource{Ref: source, Data: data})
			}

			broken := 0
			for _, res := range resources {
				doc, err := a.recoder.DecodeResource(res.Ref, bytes.NewReader(res.Data))
				if err != nil {
					return errors.Trace(err)
				}
				report := yamlid.Inspect(doc, property, refKeys)
				fmt.Fprintf(a.stdout, "%s: anchors=%d aliases=%d ids=%d references=%d\n",
					res.Ref, report.Anchors, report.Aliases, report.IDs, report.References)
				if report.OK() {
					continue
				}
				broken++
				for _, id := range report.Unresolved {
					a.logger.Error("unresolved reference", "source", res.Ref, "id", id)
				}
				for _, id := range report.Duplicates {
					a.logger.Error("duplicate id", "source", res.Ref, "id", id)
				}
			}
			a.logger.Debug("checked sources", "count", len(resources), "broken", broken)
			if broken > 0 {
				return errors.Errorf("%d of %d source(s) have broken object references", broken, len(resources))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&property, "id-property", yamlid.DefaultIDProperty, "object id property")
	cmd.Flags().StringArrayVar(&refKeys, "ref-key", nil, "key holding id references")

	return cmd
}
